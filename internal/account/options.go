package account

import "github.com/isometry/terraform-provider-adaccount/internal/directory"

// Options carries the per-call endpoint and credential overrides. Unset
// fields fall back to whatever the directory client was configured with.
type Options struct {
	Server     string
	Credential *directory.Credential
}

// CallShape is one of the four supported combinations of call options.
type CallShape int

const (
	CallDefault CallShape = iota
	CallWithServer
	CallWithCredential
	CallWithServerAndCredential
)

func (s CallShape) String() string {
	switch s {
	case CallWithServer:
		return "server"
	case CallWithCredential:
		return "credential"
	case CallWithServerAndCredential:
		return "server+credential"
	default:
		return "default"
	}
}

// SelectCallShape picks the call shape from which options are present.
func SelectCallShape(opts Options) CallShape {
	hasServer := opts.Server != ""
	hasCredential := opts.Credential != nil

	switch {
	case hasServer && hasCredential:
		return CallWithServerAndCredential
	case hasServer:
		return CallWithServer
	case hasCredential:
		return CallWithCredential
	default:
		return CallDefault
	}
}

// Options builds the directory options for the shape, carrying over only the
// values the shape includes.
func (s CallShape) Options(opts Options) directory.Options {
	switch s {
	case CallWithServer:
		return directory.Options{Server: opts.Server}
	case CallWithCredential:
		return directory.Options{Credential: opts.Credential}
	case CallWithServerAndCredential:
		return directory.Options{Server: opts.Server, Credential: opts.Credential}
	default:
		return directory.Options{}
	}
}

func (o Options) toDirectory() directory.Options {
	return SelectCallShape(o).Options(o)
}
