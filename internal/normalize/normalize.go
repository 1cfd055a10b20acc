// Package normalize reconciles the provider's variant response shapes into
// the canonical FaxRecord. The provider reports the same logical field under
// several names depending on endpoint and API vintage, so each target field
// is resolved from an ordered candidate list, first non-empty wins. The
// precedence tables below are data, not conditionals, so the resolution
// order is auditable in one place.
package normalize

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/af-corp/fax-gateway/internal/types"
)

// Candidate paths are evaluated left to right. A "metadata." prefix reaches
// into the coerced metadata mapping.
var (
	replyEmailCandidates = []string{
		"replyEmail", "replyAddress", "reply_email", "replyTo",
		"metadata.replyEmail", "metadata.replyAddress",
	}
	subjectCandidates = []string{
		"reference", "subject", "metadata.reference", "metadata.subject",
	}
	pageCountCandidates = []string{"pagesSent", "pagesSubmitted", "pages"}

	// Outbound records name the counterparty destinationFax; inbound ones
	// report the sending number as phoneNumber.
	outboundNumberCandidates = []string{"destinationFax", "phoneNumber"}
	inboundNumberCandidates  = []string{"phoneNumber", "destinationFax"}

	// Outbound records carry id; inbound list records carry messageId.
	idCandidates = []string{"id", "messageId"}

	csidCandidates     = []string{"senderCSID", "remoteCSID"}
	durationCandidates = []string{"duration", "recordingDuration"}
	statusCandidates   = []string{"status", "messageStatus"}

	submitTimeCandidates     = []string{"submitTime"}
	completionTimeCandidates = []string{"completionTime", "receiveTime"}
)

// Numeric provider status codes. 0 and 2 are both observed on successfully
// delivered faxes; anything outside the table is unknown.
var statusCodes = map[int]types.Status{
	0: types.StatusCompleted,
	1: types.StatusInProgress,
	2: types.StatusCompleted,
	3: types.StatusFailed,
	4: types.StatusCancelled,
	5: types.StatusBusy,
	6: types.StatusNoAnswer,
	7: types.StatusRejected,
	8: types.StatusRetrying,
	9: types.StatusPending,
}

// Record maps one raw provider record to a FaxRecord. It never fails:
// missing or malformed fields degrade to their zero/unknown values.
func Record(dir types.Direction, raw map[string]any) types.FaxRecord {
	meta := coerceMetadata(raw["metadata"])

	numberCandidates := outboundNumberCandidates
	if dir == types.DirectionInbound {
		numberCandidates = inboundNumberCandidates
	}

	replyEmail := firstString(raw, meta, replyEmailCandidates)
	// Older consumers read replyEmail out of metadata, so the resolved
	// value is duplicated there.
	meta["replyEmail"] = replyEmail

	rec := types.FaxRecord{
		ID:                 firstString(raw, meta, idCandidates),
		Direction:          dir,
		Status:             MapStatus(firstValue(raw, meta, statusCandidates)),
		CounterpartyNumber: firstString(raw, meta, numberCandidates),
		PageCount:          firstInt(raw, meta, pageCountCandidates),
		DurationSeconds:    firstInt(raw, meta, durationCandidates),
		SubmitTime:         firstString(raw, meta, submitTimeCandidates),
		CompletionTime:     firstString(raw, meta, completionTimeCandidates),
		CostPerUnit:        firstFloat(raw, meta, []string{"costPerUnit"}),
		CSID:               firstString(raw, meta, csidCandidates),
		Subject:            firstString(raw, meta, subjectCandidates),
		ReplyEmail:         replyEmail,
		RawMetadata:        meta,
	}
	return rec
}

// MapStatus normalizes a provider status value. Numeric codes go through the
// code table; string tokens pass through only when already known.
func MapStatus(v any) types.Status {
	switch s := v.(type) {
	case nil:
		return types.StatusUnknown
	case float64:
		if st, ok := statusCodes[int(s)]; ok && s == float64(int(s)) {
			return st
		}
		return types.StatusUnknown
	case int:
		if st, ok := statusCodes[s]; ok {
			return st
		}
		return types.StatusUnknown
	case json.Number:
		if n, err := s.Int64(); err == nil {
			if st, ok := statusCodes[int(n)]; ok {
				return st
			}
			return types.StatusUnknown
		}
		return types.StatusUnknown
	case string:
		if n, err := strconv.Atoi(s); err == nil {
			if st, ok := statusCodes[n]; ok {
				return st
			}
			return types.StatusUnknown
		}
		if st := types.Status(s); types.KnownStatus(st) {
			return st
		}
		return types.StatusUnknown
	}
	return types.StatusUnknown
}

// coerceMetadata forces the provider metadata field into a plain mapping.
// The provider variously returns an object, a JSON-encoded string, a
// primitive, or nothing at all.
func coerceMetadata(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		// Copied, not aliased: Record writes the replyEmail mirror into
		// the result and must not touch the caller's map.
		out := make(map[string]any, len(m)+1)
		for k, val := range m {
			out[k] = val
		}
		return out
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(m), &out); err == nil && out != nil {
			return out
		}
	}
	return map[string]any{}
}

func lookup(raw, meta map[string]any, path string) (any, bool) {
	if rest, ok := strings.CutPrefix(path, "metadata."); ok {
		v, ok := meta[rest]
		return v, ok
	}
	v, ok := raw[path]
	return v, ok
}

func firstValue(raw, meta map[string]any, candidates []string) any {
	for _, c := range candidates {
		if v, ok := lookup(raw, meta, c); ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(raw, meta map[string]any, candidates []string) string {
	for _, c := range candidates {
		v, ok := lookup(raw, meta, c)
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			if s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		case json.Number:
			return s.String()
		}
	}
	return ""
}

func firstInt(raw, meta map[string]any, candidates []string) *int {
	for _, c := range candidates {
		v, ok := lookup(raw, meta, c)
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			i := int(n)
			if i >= 0 {
				return &i
			}
		case int:
			if n >= 0 {
				i := n
				return &i
			}
		case json.Number:
			if i64, err := n.Int64(); err == nil && i64 >= 0 {
				i := int(i64)
				return &i
			}
		case string:
			if i, err := strconv.Atoi(n); err == nil && i >= 0 {
				return &i
			}
		}
	}
	return nil
}

func firstFloat(raw, meta map[string]any, candidates []string) *float64 {
	for _, c := range candidates {
		v, ok := lookup(raw, meta, c)
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			f := n
			return &f
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return &f
			}
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}
