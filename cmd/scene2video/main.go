package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/logging"
	"github.com/ivlev/scene2video/internal/recording"
	"github.com/ivlev/scene2video/internal/result"
	"github.com/ivlev/scene2video/internal/system"
)

// version подставляется через -ldflags "-X main.version=..."
var version = "dev"

func main() {
	system.InitResourceLimits()

	for _, d := range []string{"input/audio", "input/pdf", "output"} {
		os.MkdirAll(d, 0755)
	}

	def := config.Default()

	projectPtr := flag.String("project", "", "YAML-проект со списком сцен (если задан, -input игнорируется)")
	inputPtr := flag.String("input", "", "Путь к PDF или папке с изображениями (по умолчанию: самый свежий файл в input/pdf/)")
	audioPtr := flag.String("audio", "", "Путь к аудио (по умолчанию: самый свежий файл в input/audio/)")
	audioSyncPtr := flag.Bool("audio-sync", true, "Подогнать длительность страниц под длительность аудио")
	outputPtr := flag.String("output", "", "Путь к видео (если пусто, генерируется автоматически в output/)")
	widthPtr := flag.Int("width", def.Width, "Ширина")
	heightPtr := flag.Int("height", def.Height, "Высота")
	presetPtr := flag.String("preset", "", "Пресет формата: 16:9, 9:16 (Shorts/TikTok), 4:5 (Instagram), 1080p")
	fpsPtr := flag.Int("fps", def.FPS, "FPS")
	pageDurationPtr := flag.Float64("page-duration", 3, "Длительность показа одной страницы/изображения в секундах")
	dpiPtr := flag.Int("dpi", def.DPI, "DPI для PDF")
	cameraPtr := flag.String("camera", "none", "Камера для изображений: none, auto")
	transformPtr := flag.String("transform", def.Transform, "Ориентация: none, rotate180-mirror, rotate180, mirror, flip")
	encoderPtr := flag.String("encoder", "", "Видеоэнкодер ffmpeg (пусто: автовыбор)")
	qualityPtr := flag.Int("quality", 0, "Качество видео (0 - авто, x264: CRF 1-51, VideoToolbox: битрейт = Q*100кбит/с)")
	prefetchPtr := flag.Int("prefetch", def.PrefetchDepth, "Сколько аудио-чанков декодировать заранее")
	submitTimeoutPtr := flag.Duration("submit-timeout", def.SubmitTimeout, "Сколько ждать энкодер (0 - без ограничения)")
	statsPtr := flag.Bool("stats", false, "Показать отчёт о производительности и дописать его в benchmark.log")
	logDirPtr := flag.String("log-dir", "", "Папка для JSON-логов с ротацией (пусто: только консоль)")
	logLevelPtr := flag.String("log-level", "info", "Уровень логов: debug, info, warn, error")
	writeProjectPtr := flag.String("write-project", "", "Записать собранный проект в YAML и выйти (auto: projects/project_<время>.yaml)")

	flag.Parse()

	logger, err := logging.New(logging.Options{Level: *logLevelPtr, Dir: *logDirPtr})
	if err != nil {
		log.Fatalf("[-] Ошибка настройки логов: %v", err)
	}
	defer logger.Sync()

	cfg := def
	cfg.Width, cfg.Height = *widthPtr, *heightPtr
	cfg.Preset = *presetPtr
	cfg.FPS = *fpsPtr
	cfg.DPI = *dpiPtr
	cfg.Transform = *transformPtr
	cfg.VideoEncoder = *encoderPtr
	cfg.Quality = *qualityPtr
	cfg.PrefetchDepth = *prefetchPtr
	cfg.SubmitTimeout = *submitTimeoutPtr
	cfg.ShowStats = *statsPtr
	cfg.LogDir = *logDirPtr
	cfg.LogLevel = *logLevelPtr
	cfg.BuildVersion = version

	var project *config.Project
	if *projectPtr != "" {
		project, err = config.LoadProject(*projectPtr)
		if err != nil {
			log.Fatalf("[-] Ошибка загрузки проекта: %v", err)
		}
		cfg.ProjectPath = *projectPtr
		fmt.Printf("[*] Проект: %s (%d сцен)\n", *projectPtr, len(project.Scenes))
	} else {
		project, err = projectFromInput(inputOptions{
			Input:        *inputPtr,
			Audio:        *audioPtr,
			AudioSync:    *audioSyncPtr,
			PageDuration: *pageDurationPtr,
			DPI:          *dpiPtr,
			Camera:       *cameraPtr,
		})
		if err != nil {
			log.Fatalf("[-] Ошибка: %v", err)
		}
		cfg.ProjectPath = project.Scenes[0].Path
	}

	if *outputPtr != "" {
		project.Output = *outputPtr
	}
	if project.Output == "" {
		project.Output = defaultOutput(project)
	}

	if *writeProjectPtr != "" {
		path := projectOutputPath(*writeProjectPtr)
		if err := config.WriteProject(project, path); err != nil {
			log.Fatalf("[-] Не удалось записать проект: %v", err)
		}
		fmt.Printf("[+++] Проект сохранён: %s\n", path)
		return
	}

	if cfg.VideoEncoder == "" {
		if best := system.GetBestH264Encoder(); best != "libx264" {
			fmt.Printf("[*] Обнаружено аппаратное ускорение: %s\n", best)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := recording.New(cfg, recording.WithLogger(logger))
	final, err := follow(ctx, rec.Record(project))
	if err != nil {
		log.Fatalf("[-] Ошибка: %v", err)
	}
	if final.State != result.StateSuccess {
		log.Fatalf("[-] Ошибка записи: %s", final.Message)
	}
	fmt.Printf("[+++] Успех! Результат: %s (%.1f МБ)\n", final.OutputURI, float64(final.ByteSize)/(1<<20))
}

// follow рисует прогресс до финального значения. По Ctrl+C подписка
// закрывается, и запись отменяется после grace-окна.
func follow(ctx context.Context, s *result.Stream) (result.Result, error) {
	bar := progressbar.Default(1000, "Запись")
	sub := s.Subscribe()

	for {
		r, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				return result.Result{}, err
			}
			fmt.Println("\n[!] Прерывание, останавливаем запись...")
			sub.Close()
			select {
			case <-s.Done():
			case <-time.After(30 * time.Second):
				return result.Result{}, errors.New("запись не остановилась за 30 секунд")
			}
			return s.Last(), nil
		}

		switch r.State {
		case result.StateRendering:
			bar.Set(int(r.Progress * 1000))
		case result.StateSuccess:
			bar.Finish()
			fmt.Println()
		}
		if r.Terminal() {
			sub.Close()
			return r, nil
		}
	}
}

// projectOutputPath раскрывает "auto" в путь с меткой времени в projects/.
func projectOutputPath(flagValue string) string {
	if flagValue == "auto" {
		return config.DefaultProjectPath("projects")
	}
	return flagValue
}

func defaultOutput(p *config.Project) string {
	nameSource := "scenes"
	if p.Audio != "" {
		nameSource = p.Audio
	} else if len(p.Scenes) > 0 && p.Scenes[0].Path != "" {
		nameSource = p.Scenes[0].Path
	}
	baseName := filepath.Base(strings.TrimRight(nameSource, string(filepath.Separator)))
	nameOnly := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	cleanName := strings.ReplaceAll(nameOnly, " ", "_")
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join("output", fmt.Sprintf("%s_%s.mp4", cleanName, timestamp))
}
