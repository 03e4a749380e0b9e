package cache

import (
	"fmt"
	"net/url"
)

// Prefix 所有评论缓存 key 的公共前缀
const Prefix = "comments"

// Op 缓存的读操作类型
type Op string

const (
	OpList     Op = "list"
	OpThreaded Op = "threaded"
	OpStats    Op = "stats"
	OpItem     Op = "item"
	OpReplies  Op = "replies"
	OpUser     Op = "user"
)

// Key 结构化缓存 key。每个参数带标签并做 query 转义，不同参数组合不会拼出同一个 key
type Key struct {
	Op             Op
	ContentType    string
	ContentID      string
	CommentID      int64
	UserID         int64
	Page           int
	Limit          int
	IncludeReplies bool
}

func esc(v string) string {
	return url.QueryEscape(v)
}

func contentScope(contentType, contentID string) string {
	return fmt.Sprintf("%s:content:ct=%s:cid=%s", Prefix, esc(contentType), esc(contentID))
}

func page(p, limit int) string {
	return fmt.Sprintf("page=%d:limit=%d", p, limit)
}

// String 生成 key，只包含该 Op 相关的字段
func (k Key) String() string {
	switch k.Op {
	case OpList:
		return fmt.Sprintf("%s:op=list:%s:replies=%t", contentScope(k.ContentType, k.ContentID), page(k.Page, k.Limit), k.IncludeReplies)
	case OpThreaded:
		return fmt.Sprintf("%s:op=threaded:%s", contentScope(k.ContentType, k.ContentID), page(k.Page, k.Limit))
	case OpStats:
		return contentScope(k.ContentType, k.ContentID) + ":op=stats"
	case OpItem:
		return fmt.Sprintf("%s:item:id=%d", Prefix, k.CommentID)
	case OpReplies:
		return fmt.Sprintf("%s:replies:parent=%d:%s", Prefix, k.CommentID, page(k.Page, k.Limit))
	case OpUser:
		return fmt.Sprintf("%s:user:uid=%d:%s", Prefix, k.UserID, page(k.Page, k.Limit))
	default:
		return fmt.Sprintf("%s:op=%s", Prefix, esc(string(k.Op)))
	}
}

// ContentPattern 某内容下所有列表、树形与统计 key
func ContentPattern(contentType, contentID string) string {
	return contentScope(contentType, contentID) + ":*"
}

// ItemKey 单条评论 key
func ItemKey(commentID int64) string {
	return Key{Op: OpItem, CommentID: commentID}.String()
}

// RepliesPattern 某评论所有分页的回复列表 key
func RepliesPattern(parentID int64) string {
	return fmt.Sprintf("%s:replies:parent=%d:*", Prefix, parentID)
}

// UserPattern 某用户所有分页的评论列表 key
func UserPattern(userID int64) string {
	return fmt.Sprintf("%s:user:uid=%d:*", Prefix, userID)
}

// AllPattern 全部评论缓存
func AllPattern() string {
	return Prefix + ":*"
}
