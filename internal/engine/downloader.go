package engine

import "context"

// Params are the engine parameters for one download. The registry merges
// configuration defaults into zero-valued fields before the downloader is
// built; caller-specified values win.
type Params struct {
	URL                string
	FFmpegPath         string
	POToken            string
	StagingDirectory   string
	OutputDirectory    string
	OutputTemplate     string
	CookieFile         string
	MaxVideoResolution int
	WriteDescription   bool
	WriteThumbnail     bool
}

// Downloader is the handle to one external download task. Run delivers
// events to the sink until the task completes; cancelling ctx cancels
// the underlying task. Run returns ctx's error on cancellation.
type Downloader interface {
	Run(ctx context.Context, sink EventSink) error
	Params() Params
}

// Factory builds downloaders from merged parameters.
type Factory interface {
	New(params Params) Downloader
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(params Params) Downloader

// New calls f.
func (f FactoryFunc) New(params Params) Downloader { return f(params) }
