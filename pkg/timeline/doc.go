// Package timeline decodes captured GraphQL timeline responses into flat
// rows plus a bottom pagination cursor.
//
// The site delivers three envelope shapes for the operations this tool
// intercepts: UserTweets (timeline_v2), UserTweetsAndReplies (timeline),
// and SearchTimeline (search_timeline). Decode resolves them in that fixed
// order and takes the first shape carrying an instructions array.
//
// Entries inside an instruction are dispatched by their entryId prefix:
// promoted entries are dropped, tweet entries become one row each,
// conversation modules contribute one row per nested item, and the bottom
// cursor entry supplies the next pagination cursor.
//
// Row construction is injected, so callers choose their own row type:
//
//	page, err := timeline.Decode(body, timeline.BuildItem)
//	if err != nil {
//	    // Malformed payload: log and skip, the next capture may be fine.
//	}
//	for _, row := range page.Items {
//	    fmt.Println(row.ID(), row.Text())
//	}
//	cursor := page.NextCursor
//
// A custom builder can filter rows by returning false:
//
//	ids, _ := timeline.Decode(body, func(t *timeline.TweetResult, kind timeline.ItemKind) (string, bool) {
//	    return t.ID(), kind == timeline.KindTweet
//	})
package timeline
