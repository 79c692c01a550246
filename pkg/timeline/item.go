package timeline

import "strings"

// Item is one exported timeline row. Rows are open maps so captured fields
// survive merge and export without committing to a fixed schema; the keys
// below are the ones the standard builder populates.
type Item map[string]any

// ID returns the row's tweet id, or "" when absent.
func (it Item) ID() string {
	id, _ := it["id"].(string)
	return id
}

// CreatedAt returns the row's raw creation timestamp, or "" when absent.
func (it Item) CreatedAt() string {
	created, _ := it["created_at"].(string)
	return created
}

// Text returns the row's full text, or "" when absent.
func (it Item) Text() string {
	text, _ := it["text"].(string)
	return text
}

// BuildItem is the standard row builder. It flattens a canonical tweet
// node into an Item carrying identity, text, author, and engagement
// fields. Rows without a usable id are excluded.
func BuildItem(item *TweetResult, kind ItemKind) (Item, bool) {
	id := item.ID()
	if id == "" {
		return nil, false
	}

	row := Item{
		"id":   id,
		"type": string(kind),
	}

	if legacy := item.Legacy; legacy != nil {
		if legacy.CreatedAt != "" {
			row["created_at"] = legacy.CreatedAt
		}
		if legacy.FullText != "" {
			row["text"] = legacy.FullText
		}
		if legacy.Lang != "" {
			row["lang"] = legacy.Lang
		}
		if legacy.ConversationIDStr != "" && legacy.ConversationIDStr != id {
			row["conversation_id"] = legacy.ConversationIDStr
		}
		if legacy.InReplyToStatusIDStr != "" {
			row["in_reply_to"] = legacy.InReplyToStatusIDStr
		}
		row["retweet_count"] = legacy.RetweetCount
		row["favorite_count"] = legacy.FavoriteCount
		row["reply_count"] = legacy.ReplyCount
		row["quote_count"] = legacy.QuoteCount
		if legacy.BookmarkCount > 0 {
			row["bookmark_count"] = legacy.BookmarkCount
		}
		if legacy.IsQuoteStatus {
			row["is_quote"] = true
		}
	}

	if item.Source != "" {
		row["source"] = stripSourceMarkup(item.Source)
	}
	if item.Views != nil && item.Views.Count != "" {
		row["views"] = item.Views.Count
	}

	if author := item.Author(); author != nil {
		a := map[string]any{}
		if author.RestID != "" {
			a["id"] = author.RestID
		}
		if screenName := author.ScreenName(); screenName != "" {
			a["username"] = screenName
		}
		if name := author.Name(); name != "" {
			a["name"] = name
		}
		if len(a) > 0 {
			row["author"] = a
		}
	}

	return row, true
}

// stripSourceMarkup reduces the provider's anchor-wrapped client label to
// its text ("<a href=...>X for iPhone</a>" becomes "X for iPhone").
func stripSourceMarkup(s string) string {
	start := strings.Index(s, ">")
	end := strings.LastIndex(s, "<")
	if start == -1 || end == -1 || start+1 > end {
		return s
	}
	return s[start+1 : end]
}
