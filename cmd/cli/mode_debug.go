//go:build debug

package main

import (
	"net/http"
	_ "net/http/pprof"
)

func applyTagsOverrides(cfg *action) {
	cfg.verbose = true
	cfg.notify = "off"

	go func() {
		if err := http.ListenAndServe("127.0.0.1:6060", nil); err != nil {
			panic(err)
		}
	}()
}
