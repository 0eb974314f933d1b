package report

import (
	"fmt"
	"strings"

	ustrings "insight/pkg/platform/strings"
)

const (
	WatchlistLimit         = 10
	highActivityMinEvents  = 5
	deferredWatchMinCount  = 2
	deferredSubjectSamples = 2
)

// BuildWatchlist merges, in priority order, enhancement watch items, high
// severity findings, new high-activity topics and topics with repeated
// deferrals. Exact duplicates are dropped and the list is capped at
// WatchlistLimit. The result is never nil.
func BuildWatchlist(in Input) []string {
	list := ustrings.NewUniqueList(WatchlistLimit)

	if in.Enhancement != nil {
		for _, item := range in.Enhancement.Watchlist {
			list.Add(item)
		}
	}

	for _, f := range highFindings(in.Findings) {
		list.Add(fmt.Sprintf("%s: %s", f.Type.Title(), f.Description))
	}

	for _, t := range in.Topics {
		if t.IsNew && t.EventCount >= highActivityMinEvents {
			list.Add(fmt.Sprintf("New high-activity topic: %d events, avg urgency %s", t.EventCount, formatAverage(t.AvgUrgency)))
		}
	}

	for _, t := range in.Topics {
		if t.DecisionsDeferred >= deferredWatchMinCount {
			subjects := t.SampleSubjects[:min(len(t.SampleSubjects), deferredSubjectSamples)]
			list.Add(fmt.Sprintf("Topic with %d deferred decisions: %s", t.DecisionsDeferred, strings.Join(subjects, ", ")))
		}
	}

	return list.Items()
}
