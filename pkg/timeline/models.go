package timeline

// apiResponse is the top-level GraphQL envelope delivered by the timeline
// endpoints. Only the paths the decoder walks are modeled; everything else
// in the payload is ignored.
type apiResponse struct {
	Data responseData `json:"data"`
}

// responseData branches into the user timelines and the search timeline.
type responseData struct {
	User             *userWrapper      `json:"user"`
	SearchByRawQuery *searchByRawQuery `json:"search_by_raw_query"`
}

type userWrapper struct {
	Result *userTimelines `json:"result"`
}

// userTimelines holds the two user-timeline variants. UserTweets responses
// populate timeline_v2, UserTweetsAndReplies responses populate timeline.
type userTimelines struct {
	TimelineV2 *timelineWrapper `json:"timeline_v2"`
	Timeline   *timelineWrapper `json:"timeline"`
}

type searchByRawQuery struct {
	SearchTimeline *timelineWrapper `json:"search_timeline"`
}

type timelineWrapper struct {
	Timeline timelineBody `json:"timeline"`
}

type timelineBody struct {
	Instructions []instruction `json:"instructions"`
}

// instruction is one timeline mutation. TimelineAddEntries carries a list,
// TimelineReplaceEntry carries a single entry.
type instruction struct {
	Type    string  `json:"type"`
	Entries []entry `json:"entries"`
	Entry   *entry  `json:"entry"`
}

// entry is one timeline row wrapper. The EntryID prefix determines how the
// content is interpreted.
type entry struct {
	EntryID   string       `json:"entryId"`
	SortIndex string       `json:"sortIndex"`
	Content   entryContent `json:"content"`
}

// entryContent is polymorphic: tweet entries carry ItemContent, conversation
// modules carry Items, cursor entries carry Value and CursorType either here
// or nested inside ItemContent.
type entryContent struct {
	EntryType   string       `json:"entryType"`
	ItemContent *itemContent `json:"itemContent"`
	Items       []moduleItem `json:"items"`
	Value       string       `json:"value"`
	CursorType  string       `json:"cursorType"`
}

// moduleItem is one row inside a conversation module.
type moduleItem struct {
	EntryID string         `json:"entryId"`
	Item    moduleItemBody `json:"item"`
}

type moduleItemBody struct {
	ItemContent *itemContent `json:"itemContent"`
}

type itemContent struct {
	ItemType     string        `json:"itemType"`
	TweetResults *tweetResults `json:"tweet_results"`
	CursorType   string        `json:"cursorType"`
	Value        string        `json:"value"`
}

type tweetResults struct {
	Result *TweetResult `json:"result"`
}

// TweetResult is a tweet node from the timeline. Results of typename
// TweetWithVisibilityResults nest the real tweet one level deeper under
// Tweet; Canonical resolves either shape to the inner node.
type TweetResult struct {
	Typename string       `json:"__typename"`
	Tweet    *TweetResult `json:"tweet"`
	RestID   string       `json:"rest_id"`
	Source   string       `json:"source"`
	Views    *ViewCount   `json:"views"`
	Core     *TweetCore   `json:"core"`
	Legacy   *TweetLegacy `json:"legacy"`
}

// Canonical unwraps a visibility-limited result to the actual tweet node.
// Plain Tweet results return themselves.
func (r *TweetResult) Canonical() *TweetResult {
	if r == nil {
		return nil
	}
	if r.Typename == "TweetWithVisibilityResults" && r.Tweet != nil {
		return r.Tweet
	}
	return r
}

// ID returns the tweet's identifier, preferring rest_id over the legacy
// string id.
func (r *TweetResult) ID() string {
	if r == nil {
		return ""
	}
	if r.RestID != "" {
		return r.RestID
	}
	if r.Legacy != nil {
		return r.Legacy.IDStr
	}
	return ""
}

// Author returns the author node, or nil when the payload omits it.
func (r *TweetResult) Author() *UserResult {
	if r == nil || r.Core == nil {
		return nil
	}
	return r.Core.UserResults.Result
}

// ViewCount carries the impression counter. Count arrives as a string and
// may be absent entirely on older tweets.
type ViewCount struct {
	Count string `json:"count"`
}

// TweetCore links a tweet to its author.
type TweetCore struct {
	UserResults UserResults `json:"user_results"`
}

type UserResults struct {
	Result *UserResult `json:"result"`
}

// UserResult is an author node. Newer payloads carry the display fields
// under Core, older ones under Legacy; accessors below check both.
type UserResult struct {
	RestID string      `json:"rest_id"`
	Core   *UserCore   `json:"core"`
	Legacy *UserLegacy `json:"legacy"`
}

// ScreenName returns the author's handle without the leading "@".
func (u *UserResult) ScreenName() string {
	if u == nil {
		return ""
	}
	if u.Core != nil && u.Core.ScreenName != "" {
		return u.Core.ScreenName
	}
	if u.Legacy != nil {
		return u.Legacy.ScreenName
	}
	return ""
}

// Name returns the author's display name.
func (u *UserResult) Name() string {
	if u == nil {
		return ""
	}
	if u.Core != nil && u.Core.Name != "" {
		return u.Core.Name
	}
	if u.Legacy != nil {
		return u.Legacy.Name
	}
	return ""
}

type UserCore struct {
	ScreenName string `json:"screen_name"`
	Name       string `json:"name"`
}

type UserLegacy struct {
	ScreenName string `json:"screen_name"`
	Name       string `json:"name"`
}

// TweetLegacy holds the classic tweet fields. RetweetedStatusResult is
// present exactly when the row is a retweet.
type TweetLegacy struct {
	IDStr                 string        `json:"id_str"`
	CreatedAt             string        `json:"created_at"`
	FullText              string        `json:"full_text"`
	Lang                  string        `json:"lang"`
	ConversationIDStr     string        `json:"conversation_id_str"`
	InReplyToStatusIDStr  string        `json:"in_reply_to_status_id_str"`
	RetweetCount          int           `json:"retweet_count"`
	FavoriteCount         int           `json:"favorite_count"`
	ReplyCount            int           `json:"reply_count"`
	QuoteCount            int           `json:"quote_count"`
	BookmarkCount         int           `json:"bookmark_count"`
	IsQuoteStatus         bool          `json:"is_quote_status"`
	RetweetedStatusResult *tweetResults `json:"retweeted_status_result"`
}
