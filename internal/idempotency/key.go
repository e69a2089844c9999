// Package idempotency derives stable keys so retried or force-triggered
// work never creates a duplicate job.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

func hash(parts ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h.Sum(nil))
}

// AnalysisKey is unique per (transcript, source URL, force generation). A
// non-forced request always hashes to the same key for a given transcript
// and source, so a repeat poll collides with the job already on file. A
// forced request carries a generation token that the caller freshly mints
// per force, so a second force click never collides with the first and
// always produces its own AnalysisJob.
func AnalysisKey(transcriptID, sourceURL string, force bool, forceGeneration string) string {
	if !force {
		forceGeneration = ""
	}
	return hash("analysis", transcriptID, sourceURL, strconv.FormatBool(force), forceGeneration)
}

// ResearchKey is unique per (group, quarter, year).
func ResearchKey(groupID string, quarter, year int) string {
	return hash("research", groupID, strconv.Itoa(quarter), strconv.Itoa(year))
}
