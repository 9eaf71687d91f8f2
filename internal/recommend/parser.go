package recommend

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Marker delimits the structured section of an assistant reply.
const Marker = "---JSON---"

type payload struct {
	Recommendations []payloadItem `json:"recommendations"`
}

type payloadItem struct {
	Track *struct {
		Name   string `json:"name"`
		Artist string `json:"artist"`
		Reason string `json:"reason"`
	} `json:"track"`
	Reason  string  `json:"reason"`
	Mood    *string `json:"mood"`
	Context *string `json:"context"`
}

// section is the location of the first complete marker pair in a reply.
// start/end cover both markers; body is the text strictly between them.
type section struct {
	start, end int
	body       string
}

type scanState int

const (
	searching scanState = iota
	foundOpen
	foundClose
)

// findSection locates the first opening marker and the first closing marker
// after it. Anything past the first closing marker is ignored.
func findSection(raw string) (section, bool) {
	state := searching
	var open, bodyStart, bodyEnd int

	for state != foundClose {
		switch state {
		case searching:
			i := strings.Index(raw, Marker)
			if i < 0 {
				return section{}, false
			}
			open, bodyStart = i, i+len(Marker)
			state = foundOpen
		case foundOpen:
			j := strings.Index(raw[bodyStart:], Marker)
			if j < 0 {
				return section{}, false
			}
			bodyEnd = bodyStart + j
			state = foundClose
		}
	}

	return section{
		start: open,
		end:   bodyEnd + len(Marker),
		body:  raw[bodyStart:bodyEnd],
	}, true
}

// Conversational is the user-facing part of a reply: the first structured
// section (markers included) is cut out and the rest trimmed.
func Conversational(raw string) string {
	sec, ok := findSection(raw)
	if !ok {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(raw[:sec.start] + raw[sec.end:])
}

// Reply is a parsed assistant reply.
type Reply struct {
	Text       string
	Candidates []Candidate
}

type Parser struct {
	log   logrus.FieldLogger
	newID func() string
	now   func() time.Time
}

func NewParser(log logrus.FieldLogger) *Parser {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Parser{log: log, newID: uuid.NewString, now: time.Now}
}

// Split parses raw and returns both the conversational text and the candidates.
func (p *Parser) Split(raw string) Reply {
	return Reply{Text: Conversational(raw), Candidates: p.Parse(raw)}
}

// Parse never fails: a reply without a structured section, or with one that
// does not decode, yields no candidates.
func (p *Parser) Parse(raw string) []Candidate {
	sec, ok := findSection(raw)
	if !ok {
		return nil
	}

	var doc payload
	if err := json.Unmarshal([]byte(strings.TrimSpace(sec.body)), &doc); err != nil {
		p.log.WithError(err).WithField("section_len", len(sec.body)).
			Warn("recommendation section is not valid json, discarding")
		return nil
	}
	if doc.Recommendations == nil {
		p.log.Warn("recommendation section has no recommendations array, discarding")
		return nil
	}

	ts := p.now().UnixMilli()
	out := make([]Candidate, 0, len(doc.Recommendations))
	for i, item := range doc.Recommendations {
		if item.Track == nil {
			p.log.WithField("index", i).Warn("recommendation without track object, skipping")
			continue
		}
		reason := item.Track.Reason
		if reason == "" {
			reason = item.Reason
		}
		out = append(out, Candidate{
			ID: p.newID(),
			Track: Track{
				Name:   strings.TrimSpace(item.Track.Name),
				Artist: strings.TrimSpace(item.Track.Artist),
			},
			Reason:    reason,
			Mood:      item.Mood,
			Context:   item.Context,
			Timestamp: ts,
		})
	}
	return out
}
