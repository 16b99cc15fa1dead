package console

import (
	"regexp"
	"strings"
)

// MatchType identifies what a console line was recognized as.
type MatchType string

const (
	MatchReady       MatchType = "ready"
	MatchPlayerJoin  MatchType = "player_join"
	MatchPlayerLeave MatchType = "player_leave"
	MatchChat        MatchType = "chat"
	MatchAdvancement MatchType = "advancement"
	MatchDeath       MatchType = "death"
	MatchPlayerUUID  MatchType = "player_uuid"
)

// Classification is the semantic content extracted from one console line.
type Classification struct {
	Type    MatchType
	Player  string
	Message string
}

// Classifier converts raw console lines into classifications. It is
// stateless and safe for concurrent use; all patterns are compiled once.
type Classifier struct {
	readyMarkers []string
}

// Vendor log prefixes vary ([12:00:00] [Server thread/INFO]:,
// [INFO]:, thread tags, ...). Everything up to and including the first
// "]: " is treated as prefix; rules match on the remaining content.
var logPrefix = regexp.MustCompile(`^.*?\]:\s*`)

var (
	chatPattern = regexp.MustCompile(`^(?:\[Not Secure\] )?<([^>]+)> (.*)$`)
	joinPattern = regexp.MustCompile(`^(\S+)(?: \([^)]+\))? joined the game$`)
	// Covers both "left the game" and connection-loss disconnects.
	leavePattern       = regexp.MustCompile(`^(\S+) (?:left the game|lost connection: .+)$`)
	advancementPattern = regexp.MustCompile(`^(\S+) has (?:made the advancement|completed the challenge|reached the goal) \[(.+)\]$`)
	// Announced by vanilla servers while a player connects, before the join line.
	uuidPattern = regexp.MustCompile(`^UUID of player (\S+) is ([0-9a-fA-F-]{32,36})$`)

	// Vanilla death messages start with the victim's name followed by one of
	// a closed set of phrases.
	deathPattern = regexp.MustCompile(`^(\S+) (` + strings.Join([]string{
		`was (?:shot|slain|fireballed|pummeled|blown up|killed|impaled|squashed|poked|stung|struck by lightning|pricked to death|squished|skewered|obliterated|frozen to death|doomed to fall)\b.*`,
		`drowned\b.*`,
		`blew up`,
		`burned to death`,
		`went up in flames`,
		`went off with a bang.*`,
		`tried to swim in lava\b.*`,
		`discovered the floor was lava`,
		`experienced kinetic energy\b.*`,
		`fell (?:from a high place|off .+|out of the world|while climbing .+)`,
		`hit the ground too hard\b.*`,
		`starved to death\b.*`,
		`suffocated in a wall\b.*`,
		`withered away\b.*`,
		`froze to death\b.*`,
		`left the confines of this world\b.*`,
		`didn't want to live in the same world as .+`,
		`walked into (?:a cactus|the danger zone|fire)\b.*`,
		`died(?: because of .+)?`,
	}, "|") + `)$`)
)

// NewClassifier creates a classifier resolving readiness with the given
// marker substrings (per server kind, from config).
func NewClassifier(readyMarkers []string) *Classifier {
	return &Classifier{readyMarkers: readyMarkers}
}

// Classify applies the rule table to one raw console line, first match wins.
// It returns nil when the line carries no recognized semantic content; the
// caller still records such lines in the ring buffer.
func (c *Classifier) Classify(raw string) *Classification {
	content := StripPrefix(raw)
	if content == "" {
		return nil
	}

	for _, marker := range c.readyMarkers {
		if strings.Contains(content, marker) {
			return &Classification{Type: MatchReady}
		}
	}

	if m := chatPattern.FindStringSubmatch(content); m != nil {
		return &Classification{Type: MatchChat, Player: m[1], Message: m[2]}
	}
	if m := joinPattern.FindStringSubmatch(content); m != nil {
		return &Classification{Type: MatchPlayerJoin, Player: m[1]}
	}
	if m := leavePattern.FindStringSubmatch(content); m != nil {
		return &Classification{Type: MatchPlayerLeave, Player: m[1]}
	}
	if m := uuidPattern.FindStringSubmatch(content); m != nil {
		return &Classification{Type: MatchPlayerUUID, Player: m[1], Message: m[2]}
	}
	if m := advancementPattern.FindStringSubmatch(content); m != nil {
		return &Classification{Type: MatchAdvancement, Player: m[1], Message: m[2]}
	}
	if m := deathPattern.FindStringSubmatch(content); m != nil {
		return &Classification{Type: MatchDeath, Player: m[1], Message: content}
	}

	return nil
}

// StripPrefix removes the vendor log prefix (timestamp, thread tag, level)
// from a console line, returning the message content.
func StripPrefix(raw string) string {
	if loc := logPrefix.FindStringIndex(raw); loc != nil {
		return raw[loc[1]:]
	}
	return strings.TrimSpace(raw)
}
