package app

import (
	"github.com/teachflow/teachflow-backend/internal/handlers"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/sse"
)

type Handlers struct {
	Auth         *handlers.AuthHandler
	Course       *handlers.CourseHandler
	TeachingPlan *handlers.TeachingPlanHandler
	LessonPlan   *handlers.LessonPlanHandler
	Copyright    *handlers.CopyrightHandler
	Jobs         *handlers.JobHandler
	Chat         *handlers.ChatHandler
	SSE          *handlers.SSEHandler
}

func wireHandlers(log *logger.Logger, reposet Repos, serviceset Services, hub *sse.Hub) Handlers {
	return Handlers{
		Auth:         handlers.NewAuthHandler(log, serviceset.Auth, reposet.User),
		Course:       handlers.NewCourseHandler(log, reposet.Course, reposet.CourseDocument),
		TeachingPlan: handlers.NewTeachingPlanHandler(log, reposet.Course, reposet.CourseDocument, serviceset.Jobs),
		LessonPlan:   handlers.NewLessonPlanHandler(log, reposet.User, reposet.Course, reposet.CourseDocument, serviceset.Jobs, newLLMClient),
		Copyright:    handlers.NewCopyrightHandler(log, reposet.CopyrightProject, serviceset.Jobs),
		Jobs:         handlers.NewJobHandler(log, serviceset.Jobs),
		Chat:         handlers.NewChatHandler(log, reposet.User, reposet.ChatMessage, newLLMClient),
		SSE:          handlers.NewSSEHandler(log, hub),
	}
}
