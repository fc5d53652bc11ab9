package app

import (
	"gorm.io/gorm"

	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/repos"
)

type Repos struct {
	User             repos.UserRepo
	Course           repos.CourseRepo
	CourseDocument   repos.CourseDocumentRepo
	CopyrightProject repos.CopyrightProjectRepo
	GenerationJob    repos.GenerationJobRepo
	ChatMessage      repos.ChatMessageRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		User:             repos.NewUserRepo(db, log),
		Course:           repos.NewCourseRepo(db, log),
		CourseDocument:   repos.NewCourseDocumentRepo(db, log),
		CopyrightProject: repos.NewCopyrightProjectRepo(db, log),
		GenerationJob:    repos.NewGenerationJobRepo(db, log),
		ChatMessage:      repos.NewChatMessageRepo(db, log),
	}
}
