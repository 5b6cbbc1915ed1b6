package handler

type ContextKey string

var (
	RoleCtxKey      ContextKey = "role"
	SubCtxKey       ContextKey = "sub"
	RequestIDCtxKey ContextKey = "requestID"
	MyInfoCtx       ContextKey = "myInfo"
	UserInfoCtx     ContextKey = "userInfo"
	SubjectCtx      ContextKey = "subject"
	TutorCtx        ContextKey = "tutor"
	SessionCtx      ContextKey = "session"
)
