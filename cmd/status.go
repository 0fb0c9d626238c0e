package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"

	"webkvm/internal/session"
)

// statusLine is the one-line summary shown in the tray menu
func statusLine(st session.Status) string {
	if st.Session == "" {
		return "reloading"
	}
	lock := "free"
	if st.Locked {
		lock = "locked"
	}
	up := durafmt.Parse(time.Since(st.SessionStarted).Round(time.Second)).LimitFirstN(1).String()
	return fmt.Sprintf("%s, %d frames, %s, up %s", lock, st.Cycles, humanize.Bytes(st.BytesReceived), up)
}
