package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/system"
)

type inputOptions struct {
	Input        string
	Audio        string
	AudioSync    bool
	PageDuration float64
	DPI          int
	Camera       string
}

// Для подмены в тестах.
var (
	audioDuration = system.GetAudioDuration
	countPages    = func(path string) (int, error) { return scene.CountPages(nil, path) }
)

// projectFromInput собирает проект из PDF или папки с картинками, когда
// файл проекта не задан.
func projectFromInput(o inputOptions) (*config.Project, error) {
	input := o.Input
	if input == "" {
		latest, err := system.FindLatestPDF("input/pdf")
		if err != nil {
			return nil, fmt.Errorf("%w. Положите PDF в input/pdf/", err)
		}
		input = latest
		fmt.Printf("[*] Выбран файл: %s\n", input)
	}

	audioPath := o.Audio
	if audioPath == "" {
		if latest, err := system.FindLatestAudio("input/audio"); err == nil {
			audioPath = latest
			fmt.Printf("[*] Выбрано аудио: %s\n", audioPath)
		}
	}

	isPDF := strings.EqualFold(filepath.Ext(input), ".pdf")
	var images []string
	units := 0
	if isPDF {
		n, err := countPages(input)
		if err != nil {
			return nil, err
		}
		units = n
	} else {
		fi, err := os.Stat(input)
		if err != nil {
			return nil, err
		}
		if fi.IsDir() {
			if images, err = system.ListImages(input); err != nil {
				return nil, err
			}
		} else {
			images = []string{input}
		}
		units = len(images)
	}
	if units == 0 {
		return nil, fmt.Errorf("в источнике нет страниц или изображений: %s", input)
	}

	pageDuration := o.PageDuration
	if audioPath != "" && o.AudioSync {
		d, err := audioDuration(audioPath)
		if err != nil {
			log.Printf("[!] Не удалось получить длительность аудио: %v", err)
		} else if d > 0 {
			pageDuration = d / float64(units)
			fmt.Printf("[*] Длительность видео установлена по аудио: %.2fs (%.2fs на страницу)\n", d, pageDuration)
		}
	}
	if pageDuration <= 0 {
		return nil, fmt.Errorf("длительность страницы должна быть положительной: %v", pageDuration)
	}

	p := &config.Project{Version: "1.0", Audio: audioPath}
	if isPDF {
		p.Scenes = []config.SceneSpec{{
			Type:         "pdf",
			Path:         input,
			PageDuration: pageDuration,
			DPI:          o.DPI,
			Camera:       o.Camera,
		}}
		return p, nil
	}

	for _, img := range images {
		spec := config.SceneSpec{
			Name:     filepath.Base(img),
			Type:     "image",
			Path:     img,
			Duration: pageDuration,
			Camera:   o.Camera,
		}
		if strings.EqualFold(filepath.Ext(img), ".gif") {
			spec.Type = "gif"
			spec.Camera = ""
		}
		p.Scenes = append(p.Scenes, spec)
	}
	return p, nil
}
