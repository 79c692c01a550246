package timeline

import (
	"encoding/json"
	"strings"

	"xscraper/pkg/errors"
)

// ItemKind classifies a decoded timeline row.
type ItemKind string

const (
	// KindTweet is an original tweet, a reply, or a quote.
	KindTweet ItemKind = "Tweet"
	// KindRetweet is a plain retweet of someone else's tweet.
	KindRetweet ItemKind = "Retweet"
)

// RowBuilder converts a canonical tweet node into a row of the caller's
// type. Returning false excludes the row from the page.
type RowBuilder[T any] func(item *TweetResult, kind ItemKind) (T, bool)

// Page is one decoded response: rows in arrival order plus the bottom
// pagination cursor, empty when the payload carried none.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// Instruction types the decoder acts on. Other instruction types
// (TimelinePinEntry, TimelineClearCache, ...) are ignored.
const (
	instructionAddEntries   = "TimelineAddEntries"
	instructionReplaceEntry = "TimelineReplaceEntry"
)

// Entry id prefixes determine how an entry's content is interpreted.
const (
	prefixPromoted            = "promoted-"
	prefixTweet               = "tweet-"
	prefixConversation        = "conversation-"
	prefixProfileConversation = "profile-conversation-"
	prefixCursorBottom        = "cursor-bottom-"
)

const cursorTypeBottom = "Bottom"

// Decode parses one captured timeline response body and walks its entries,
// invoking build once per tweet row. Promoted entries are dropped before
// the builder sees them. A payload that is not JSON or matches none of the
// known envelope shapes returns an error; the caller logs it and moves on.
func Decode[T any](payload []byte, build RowBuilder[T]) (*Page[T], error) {
	var resp apiResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, errors.NewDecode("unmarshal timeline payload", err)
	}

	instructions := resp.instructions()
	if instructions == nil {
		return nil, errors.ErrNoTimelinePayload
	}

	page := &Page[T]{}
	for i := range instructions {
		for _, e := range instructions[i].entryList() {
			decodeEntry(page, &e, build)
		}
	}
	return page, nil
}

// instructions resolves the three known envelope shapes in fixed priority
// order: user timeline_v2, then user timeline, then search timeline. The
// first shape carrying an instructions array wins even when a later shape
// is also populated.
func (r *apiResponse) instructions() []instruction {
	if u := r.Data.User; u != nil && u.Result != nil {
		if tl := u.Result.TimelineV2; tl != nil && tl.Timeline.Instructions != nil {
			return tl.Timeline.Instructions
		}
		if tl := u.Result.Timeline; tl != nil && tl.Timeline.Instructions != nil {
			return tl.Timeline.Instructions
		}
	}
	if s := r.Data.SearchByRawQuery; s != nil && s.SearchTimeline != nil && s.SearchTimeline.Timeline.Instructions != nil {
		return s.SearchTimeline.Timeline.Instructions
	}
	return nil
}

// entryList flattens the two handled instruction shapes into one list. A
// replace instruction carries a single entry.
func (ins *instruction) entryList() []entry {
	switch ins.Type {
	case instructionAddEntries:
		return ins.Entries
	case instructionReplaceEntry:
		if ins.Entry != nil {
			return []entry{*ins.Entry}
		}
	}
	return nil
}

// decodeEntry dispatches one entry by its id prefix. Entries with missing
// or malformed interior nodes are skipped row-wise; one bad entry never
// discards its siblings.
func decodeEntry[T any](page *Page[T], e *entry, build RowBuilder[T]) {
	id := e.EntryID
	switch {
	case strings.HasPrefix(id, prefixPromoted):
		// Ads are dropped before the builder sees them.

	case strings.HasPrefix(id, prefixTweet):
		ic := e.Content.ItemContent
		if ic == nil || ic.TweetResults == nil {
			return
		}
		item := ic.TweetResults.Result.Canonical()
		if item == nil {
			return
		}
		appendRow(page, item, classify(item), build)

	case isConversationEntry(id):
		for i := range e.Content.Items {
			ic := e.Content.Items[i].Item.ItemContent
			if ic == nil || ic.TweetResults == nil {
				continue
			}
			item := ic.TweetResults.Result.Canonical()
			if item == nil {
				continue
			}
			appendRow(page, item, KindTweet, build)
		}

	case strings.HasPrefix(id, prefixCursorBottom):
		if value, ok := bottomCursor(&e.Content); ok {
			// When several bottom cursors appear, the last one wins.
			page.NextCursor = value
		}
	}
}

func appendRow[T any](page *Page[T], item *TweetResult, kind ItemKind, build RowBuilder[T]) {
	if row, ok := build(item, kind); ok {
		page.Items = append(page.Items, row)
	}
}

// classify returns Retweet when the legacy payload carries a nested
// retweeted status, else Tweet.
func classify(item *TweetResult) ItemKind {
	if item.Legacy != nil && item.Legacy.RetweetedStatusResult != nil {
		return KindRetweet
	}
	return KindTweet
}

// isConversationEntry matches both conversation id forms: search and home
// timelines emit "conversation-", profile timelines emit
// "profile-conversation-".
func isConversationEntry(id string) bool {
	return strings.HasPrefix(id, prefixConversation) ||
		strings.HasPrefix(id, prefixProfileConversation)
}

// bottomCursor extracts a bottom pagination cursor. The cursor type and
// value appear either directly on the content or nested in itemContent.
func bottomCursor(c *entryContent) (string, bool) {
	if c.CursorType == cursorTypeBottom {
		return c.Value, true
	}
	if c.ItemContent != nil && c.ItemContent.CursorType == cursorTypeBottom {
		return c.ItemContent.Value, true
	}
	return "", false
}
