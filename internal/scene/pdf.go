package scene

import (
	"image"
	"io"
	"io/fs"
	"math"

	"github.com/gen2brain/go-fitz"

	"github.com/ivlev/scene2video/internal/director"
	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/errs"
)

// PDF shows each page of a document for a fixed number of frames.
// Only the current page raster is kept in memory.
type PDF struct {
	base
	doc     *fitz.Document
	dpi     float64
	perPage int
	auto    bool

	page   int
	raster image.Image
	camera []director.Keyframe
}

type PDFOptions struct {
	FPS          int
	DPI          int
	PageDuration float64
	AutoCamera   bool
	Fade         effects.Fade
}

func OpenPDF(fsys fs.FS, path string, opts PDFOptions) (*PDF, error) {
	doc, err := openDocument(fsys, path)
	if err != nil {
		return nil, err
	}

	pages := doc.NumPage()
	if pages == 0 {
		doc.Close()
		return nil, errs.Errorf(errs.Asset, "scene.OpenPDF", "%s: document has no pages", path)
	}
	bound, err := doc.Bound(0)
	if err != nil {
		doc.Close()
		return nil, errs.E(errs.Asset, "scene.OpenPDF", err)
	}

	// Bound отдаёт размер в точках (72 на дюйм)
	scale := float64(opts.DPI) / 72
	size := image.Pt(int(math.Round(float64(bound.Dx())*scale)), int(math.Round(float64(bound.Dy())*scale)))
	perPage := FramesFor(opts.PageDuration, opts.FPS)

	return &PDF{
		base:    newBase(path, pages*perPage, opts.FPS, size, opts.Fade),
		doc:     doc,
		dpi:     float64(opts.DPI),
		perPage: perPage,
		auto:    opts.AutoCamera,
		page:    -1,
	}, nil
}

func openDocument(fsys fs.FS, path string) (*fitz.Document, error) {
	if fsys == nil {
		doc, err := fitz.New(path)
		if err != nil {
			return nil, errs.Errorf(errs.Asset, "scene.OpenPDF", "%s: %w", path, err)
		}
		return doc, nil
	}

	f, err := openAsset(fsys, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errs.E(errs.Asset, "scene.OpenPDF", err)
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, errs.Errorf(errs.Asset, "scene.OpenPDF", "%s: %w", path, err)
	}
	return doc, nil
}

// CountPages opens the document only to read its page count.
func CountPages(fsys fs.FS, path string) (int, error) {
	doc, err := openDocument(fsys, path)
	if err != nil {
		return 0, err
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

func (p *PDF) GenerateFrame(local int) (image.Image, error) {
	if err := p.seek(local); err != nil {
		return nil, err
	}

	page := local / p.perPage
	if page != p.page {
		if err := p.load(page); err != nil {
			return nil, err
		}
	}

	t := float64(local%p.perPage) / float64(p.fps)
	return p.faded(viewOf(p.raster, p.camera, t), local), nil
}

func (p *PDF) load(page int) error {
	img, err := p.doc.ImageDPI(page, p.dpi)
	if err != nil {
		return errs.Errorf(errs.Asset, "scene.PDF", "render page %d: %w", page, err)
	}
	p.page, p.raster, p.camera = page, img, nil

	if p.auto {
		camera, err := AutoCamera(img, float64(p.perPage)/float64(p.fps))
		if err != nil {
			return errs.E(errs.Asset, "scene.PDF", err)
		}
		p.camera = camera
	}
	return nil
}

func (p *PDF) Close() error {
	p.raster = nil
	if p.doc == nil {
		return nil
	}
	err := p.doc.Close()
	p.doc = nil
	return err
}
