package users

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

type queryKind int

const (
	queryAll queryKind = iota
	queryByIDs
	queryByEmail
	queryByNickname
)

// Query is a validated list request with exactly one selection predicate
type Query struct {
	kind     queryKind
	ids      []int64
	email    string
	nickname string
}

// ResolveFilter checks that at most one filter is present and turns the
// filter into a Query. Ids are deduplicated and sorted.
func ResolveFilter(filter *Filter) (*Query, error) {
	if filter == nil {
		return &Query{kind: queryAll}, nil
	}

	var present []string
	if len(filter.IDs) > 0 {
		present = append(present, "ids")
	}
	if filter.Email != "" {
		present = append(present, "email")
	}
	if filter.Nickname != "" {
		present = append(present, "nickname")
	}
	if len(present) > 1 {
		return nil, NewMutuallyExclusiveError(present)
	}

	switch {
	case len(filter.IDs) > 0:
		return &Query{kind: queryByIDs, ids: normalizeIDs(filter.IDs)}, nil
	case filter.Email != "":
		return &Query{kind: queryByEmail, email: filter.Email}, nil
	case filter.Nickname != "":
		return &Query{kind: queryByNickname, nickname: filter.Nickname}, nil
	default:
		return &Query{kind: queryAll}, nil
	}
}

// Run executes the query against store. A filtered query that matches
// nothing is a not-found error; the unfiltered query may return an empty list.
func (q *Query) Run(ctx context.Context, store UserStore) ([]*User, error) {
	var (
		users []*User
		err   error
	)
	switch q.kind {
	case queryByIDs:
		users, err = store.ListUsersByIDs(ctx, q.ids)
	case queryByEmail:
		users, err = store.ListUsersByEmail(ctx, q.email)
	case queryByNickname:
		users, err = store.ListUsersByNickname(ctx, q.nickname)
	default:
		users, err = store.ListUsers(ctx)
	}
	if err != nil {
		return nil, err
	}

	if len(users) == 0 {
		if q.kind != queryAll {
			return nil, NewNoMatchError()
		}
		return []*User{}, nil
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// cacheName is the cache entry name of the query's result
func (q *Query) cacheName() string {
	switch q.kind {
	case queryByIDs:
		parts := make([]string, len(q.ids))
		for i, id := range q.ids {
			parts[i] = strconv.FormatInt(id, 10)
		}
		return "list:ids=" + strings.Join(parts, ",")
	case queryByEmail:
		return "list:email=" + url.QueryEscape(q.email)
	case queryByNickname:
		return "list:nickname=" + url.QueryEscape(q.nickname)
	default:
		return "list:all"
	}
}

// scopeTags are the tags every write that can change the query's result
// invalidates: the id of each requested record, the searched email or
// nickname, or the all tag.
func (q *Query) scopeTags() []string {
	switch q.kind {
	case queryByIDs:
		tags := make([]string, len(q.ids))
		for i, id := range q.ids {
			tags[i] = idTag(id)
		}
		return tags
	case queryByEmail:
		return []string{emailTag(q.email)}
	case queryByNickname:
		return []string{nicknameTag(q.nickname)}
	default:
		return []string{allTag}
	}
}

func normalizeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
