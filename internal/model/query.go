// Package model 包含了检索流水线的数据模型定义。
package model

// QueryMode 表示一次请求的工作模式。
type QueryMode string

const (
	ModeSearch         QueryMode = "search"
	ModeQuestionAnswer QueryMode = "question_answer"
)

// AnswerStyle 是问答模式下由调用方指定的回答风格。
type AnswerStyle string

const (
	StyleUser   AnswerStyle = "user"
	StyleLawyer AnswerStyle = "lawyer"
)

// Valid 判断回答风格是否为已知取值。
func (s AnswerStyle) Valid() bool {
	return s == StyleUser || s == StyleLawyer
}

// AnonymousUserID 表示未认证调用方，此时只允许检索法律知识库。
const AnonymousUserID uint = 0

// Query 是一次提交后不可变的检索请求。
type Query struct {
	Text            string
	UserID          uint
	Mode            QueryMode
	MaxResults      int
	MinRelevance    float64
	IncludeAnalysis bool
}

// Anonymous 判断请求是否来自未认证调用方。
func (q Query) Anonymous() bool {
	return q.UserID == AnonymousUserID
}
