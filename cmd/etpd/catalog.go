// SPDX-FileCopyrightText: 2020, 2021, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/storage"
)

// settleTime to wait after the last write event before a file gets imported.
const settleTime = 250 * time.Millisecond

// catalogWatcher imports TOML catalog files dropped into a directory.
type catalogWatcher struct {
	directory string
	store     *storage.Store
	hub       *hub
	watcher   *fsnotify.Watcher

	pending map[string]*time.Timer
	ready   chan string

	stopSyn chan struct{}
	stopAck chan struct{}
}

// newCatalogWatcher imports all present catalog files and watches the directory for new ones afterwards. The hub
// might be nil if no streaming is configured.
func newCatalogWatcher(directory string, store *storage.Store, h *hub) (cw *catalogWatcher, err error) {
	cw = &catalogWatcher{
		directory: directory,
		store:     store,
		hub:       h,

		pending: make(map[string]*time.Timer),
		ready:   make(chan string),

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	if err = os.MkdirAll(directory, 0700); err != nil {
		return
	}
	if cw.watcher, err = fsnotify.NewWatcher(); err != nil {
		return
	}
	if err = cw.watcher.Add(directory); err != nil {
		_ = cw.watcher.Close()
		return
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		_ = cw.watcher.Close()
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && isCatalogFile(entry.Name()) {
			cw.importFile(filepath.Join(directory, entry.Name()))
		}
	}

	go cw.handler()
	return
}

func isCatalogFile(name string) bool {
	return filepath.Ext(name) == ".toml"
}

func (cw *catalogWatcher) log() *log.Entry {
	return log.WithField("catalog", cw.directory)
}

func (cw *catalogWatcher) importFile(filename string) {
	logger := cw.log().WithField("file", filename)

	result, err := cw.store.Import(filename)
	if err != nil {
		logger.WithError(err).Warn("Importing catalog file errored")
	}

	if cw.hub != nil && len(result.Data) > 0 {
		cw.hub.publish(result.Data)
	}
}

func (cw *catalogWatcher) handler() {
	defer func() {
		for _, timer := range cw.pending {
			timer.Stop()
		}
		_ = cw.watcher.Close()
		close(cw.stopAck)
	}()

	for {
		select {
		case <-cw.stopSyn:
			return

		case e, ok := <-cw.watcher.Events:
			if !ok {
				cw.log().Error("fsnotify's Event channel was closed")
				return
			}

			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isCatalogFile(e.Name) {
				cw.log().WithFields(log.Fields{
					"file":      e.Name,
					"operation": e.Op.String(),
				}).Debug("Ignoring fsnotify event")
				continue
			}

			// Wait until the file is written completely.
			name := e.Name
			if timer, ok := cw.pending[name]; ok {
				timer.Reset(settleTime)
			} else {
				cw.pending[name] = time.AfterFunc(settleTime, func() {
					select {
					case cw.ready <- name:
					case <-cw.stopSyn:
					}
				})
			}

		case name := <-cw.ready:
			delete(cw.pending, name)
			cw.importFile(name)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				cw.log().Error("fsnotify's Errors channel was closed")
				return
			}

			cw.log().WithError(err).Error("fsnotify errored")
			return
		}
	}
}

// close the catalogWatcher and wait for its handler.
func (cw *catalogWatcher) close() {
	close(cw.stopSyn)
	<-cw.stopAck
}
