package system

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

var (
	PDFExtensions   = []string{".pdf"}
	AudioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}
	ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}
)

func InitResourceLimits() {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Не удалось получить лимит файлов: %v", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Не удалось установить лимит файлов: %v", err)
	} else {
		fmt.Printf("[*] Системный лимит открытых файлов увеличен до %d\n", rLimit.Cur)
	}
}

func FindLatestPDF(dir string) (string, error) {
	return FindLatest(dir, PDFExtensions, "PDF-файлов")
}

func FindLatestAudio(dir string) (string, error) {
	return FindLatest(dir, AudioExtensions, "аудио-файлов")
}

// FindLatest возвращает самый свежий файл в dir с одним из расширений.
func FindLatest(dir string, extensions []string, what string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !HasExtension(f.Name(), extensions) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("в папке %s не найдено %s", dir, what)
	}

	return latestFile, nil
}

// ListImages возвращает изображения папки в алфавитном порядке.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && HasExtension(entry.Name(), ImageExtensions) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	// os.ReadDir уже сортирует по имени
	return paths, nil
}

func HasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func GetAudioDuration(path string) (float64, error) {
	cmd := exec.Command("ffprobe", "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, err
	}

	var duration float64
	_, err = fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &duration)
	if err != nil {
		return 0, err
	}

	return duration, nil
}

var (
	encoderOnce sync.Once
	encoderName string
)

// GetBestH264Encoder выбирает энкодер по приоритету:
// VideoToolbox (macOS), NVENC (NVIDIA), затем программный libx264.
// Список энкодеров ffmpeg запрашивается один раз за процесс.
func GetBestH264Encoder() string {
	encoderOnce.Do(func() {
		encoderName = "libx264"
		out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
		if err != nil {
			return
		}
		for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
			if strings.Contains(string(out), name) {
				encoderName = name
				return
			}
		}
	})
	return encoderName
}

// DefaultQuality подбирает качество по умолчанию для энкодера.
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75 // битрейт = Q*100 кбит/с
	case "h264_nvenc":
		return 28 // эквивалент CRF для NVENC
	default:
		return 23 // стандартный CRF для x264
	}
}

// QualityArgs переводит качество в аргументы конкретного энкодера.
func QualityArgs(encoder string, quality int) []string {
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox часто не поддерживает -q:v напрямую. Используем битрейт.
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprintf("%d", quality)}
	default:
		return []string{"-crf", fmt.Sprintf("%d", quality), "-preset", "medium"}
	}
}
