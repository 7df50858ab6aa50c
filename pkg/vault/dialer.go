package vault

import (
	"nimbus/internal/bridge"
	"nimbus/internal/datachannel"
	"nimbus/internal/download"
	"nimbus/internal/obslog"
	"nimbus/internal/upload"
)

// liveDialer opens a real minio-backed datachannel.Client per contact. It
// is wrapped as uploadDialer or downloadDialer at each call site, since
// *datachannel.Client independently satisfies both consumer-defined
// DataChannel interfaces.
type liveDialer struct {
	secure bool
	logger obslog.Logger
}

func newLiveDialer(secure bool, logger obslog.Logger) *liveDialer {
	return &liveDialer{secure: secure, logger: logger}
}

func (d *liveDialer) dial(contact bridge.Contact) (*datachannel.Client, error) {
	return datachannel.New(contact, d.secure, d.logger)
}

// uploadDialer adapts liveDialer to upload.Dialer.
type uploadDialer struct{ *liveDialer }

func (d uploadDialer) Dial(contact bridge.Contact) (upload.DataChannel, error) {
	return d.dial(contact)
}

// downloadDialer adapts liveDialer to download.Dialer.
type downloadDialer struct{ *liveDialer }

func (d downloadDialer) Dial(contact bridge.Contact) (download.DataChannel, error) {
	return d.dial(contact)
}
