package timeline

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the base URL of the site.
	BaseURL = "https://x.com"

	// GraphQLPathMarker appears in every API request the capture layer
	// should consider.
	GraphQLPathMarker = "/i/api/graphql/"
)

// GraphQL operation names whose responses carry timeline instructions.
const (
	opUserTweets           = "UserTweets"
	opUserTweetsAndReplies = "UserTweetsAndReplies"
	opSearchTimeline       = "SearchTimeline"
)

// MatchesTimelineURL reports whether a request URL belongs to one of the
// timeline GraphQL operations worth intercepting. The operation name is
// the last path segment, after the query id.
func MatchesTimelineURL(rawURL string) bool {
	if !strings.Contains(rawURL, GraphQLPathMarker) {
		return false
	}
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i != -1 {
		path = path[:i]
	}
	switch path[strings.LastIndex(path, "/")+1:] {
	case opUserTweets, opUserTweetsAndReplies, opSearchTimeline:
		return true
	}
	return false
}

// ProfileURL returns the timeline page for a user.
func ProfileURL(username string) string {
	return fmt.Sprintf("%s/%s", BaseURL, NormalizeUsername(username))
}

// WithRepliesURL returns the tweets-and-replies page for a user.
func WithRepliesURL(username string) string {
	return fmt.Sprintf("%s/%s/with_replies", BaseURL, NormalizeUsername(username))
}

// SearchURL returns the live search page for a raw query.
func SearchURL(query string) string {
	return fmt.Sprintf("%s/search?q=%s&src=typed_query&f=live", BaseURL, url.QueryEscape(query))
}

// NormalizeUsername lowercases a handle and strips a leading "@" along
// with surrounding whitespace and trailing slashes. Stored snapshots and
// identity comparisons always use the normalized form.
func NormalizeUsername(username string) string {
	u := strings.TrimSpace(username)
	u = strings.TrimPrefix(u, "@")
	u = strings.TrimRight(u, "/ ")
	return strings.ToLower(u)
}

// IsValidUsername checks a handle against the provider's rules: 1 to 15
// characters, letters, digits, and underscores only.
func IsValidUsername(username string) bool {
	u := strings.TrimPrefix(username, "@")
	if u == "" || len(u) > 15 {
		return false
	}
	for _, char := range u {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			return false
		}
	}
	return true
}
