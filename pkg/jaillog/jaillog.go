// Package jaillog parses the jailer's structured log lines and re-emits
// them at a mapped logrus severity, per spec §4.6.
package jaillog

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// lineRe matches "[<level>][<timestamp>]([pid] source:line )?<message>",
// with one optional space before <message>.
// The optional pid/source-location group is itself structured as
// "[pid] source:line ", which the jailer emits only in verbose builds.
var lineRe = regexp.MustCompile(`^\[(?P<level>[DIWEF])\]\[[^\]]*\](?:\[(?P<pid>[^\]]*)\]\s*(?P<source>\S+:\d+)\s+)? ?(?P<message>.*)$`)

var fieldIndex = map[string]int{
	"level":   lineRe.SubexpIndex("level"),
	"pid":     lineRe.SubexpIndex("pid"),
	"source":  lineRe.SubexpIndex("source"),
	"message": lineRe.SubexpIndex("message"),
}

// Parse processes the jailer's captured log output line by line, logging
// each at the level spec.md §4.6 maps it to on the given entry.
//
// debug selects whether informational lines not prefixed with "pid=" are
// shown, and whether the optional source-location prefix is attached to
// the re-emitted entry as a "source" field.
func Parse(log *logrus.Entry, raw string, debug bool) {
	for _, line := range strings.Split(raw, "\n") {
		if line == "" {
			continue
		}
		parseLine(log, line, debug)
	}
}

func parseLine(log *logrus.Entry, line string, debug bool) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		log.Warnf("unparseable jailer log line: %s", line)
		return
	}

	level := m[fieldIndex["level"]]
	source := m[fieldIndex["source"]]
	message := m[fieldIndex["message"]]

	entry := log
	if debug && source != "" {
		entry = entry.WithField("source", source)
	}

	switch level {
	case "D":
		entry.Debug(message)
	case "I":
		if debug || strings.HasPrefix(message, "pid=") {
			entry.Info(message)
		}
	case "W":
		entry.Warn(message)
	case "E", "F":
		entry.Error(message)
	}
}
