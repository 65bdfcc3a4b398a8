package inspector

import "time"

// Plugin is the plugin selected for RunCommand.
type Plugin struct {
	// Name and Identifier come from the plugin manifest.
	Name       string
	Identifier string
	// BaseDir is the bundle directory the plugin was resolved to.
	BaseDir string
}

// Document is the document open in the application.
type Document struct {
	SourcePath  string
	ScratchPath string
	OpenedAt    time.Time
}

// Session is the orchestrator's view of the application. A zero Session has
// no plugin selected and no document open.
type Session struct {
	Plugin   *Plugin
	Document *Document
}

func (s Session) clone() Session {
	out := Session{}
	if s.Plugin != nil {
		p := *s.Plugin
		out.Plugin = &p
	}
	if s.Document != nil {
		d := *s.Document
		out.Document = &d
	}
	return out
}
