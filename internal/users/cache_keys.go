package users

import (
	"net/url"
	"strconv"
)

const allTag = "all"

func userCacheName(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}

func idTag(id int64) string {
	return "id:" + strconv.FormatInt(id, 10)
}

func emailTag(email string) string {
	return "email:" + url.QueryEscape(email)
}

func nicknameTag(nickname string) string {
	return "nickname:" + url.QueryEscape(nickname)
}

// recordTags are the scope tags a change to user can affect
func recordTags(user *User) []string {
	return []string{idTag(user.ID), emailTag(user.Email), nicknameTag(user.Nickname)}
}

// mutationTags are the tags invalidated when a record changes from before to
// after; either side may be nil for a create or a delete.
func mutationTags(before, after *User) []string {
	tags := []string{allTag}
	if before != nil {
		tags = append(tags, recordTags(before)...)
	}
	if after != nil {
		tags = append(tags, recordTags(after)...)
	}
	return tags
}
