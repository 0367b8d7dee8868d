package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/freelance-marketplace/internal/logger"
	"github.com/ignatzorin/freelance-marketplace/internal/models"
)

// UserSeeder хранилище, в которое можно добавить пользователя напрямую.
type UserSeeder interface {
	AddUser(user models.User)
}

// SeedUser демо пользователь с выданным токеном.
type SeedUser struct {
	User  models.User
	Token string
}

// SeedService заводит демо пользователей для локального запуска на хранилище в памяти.
type SeedService struct {
	users  UserSeeder
	tokens *TokenManager
}

func NewSeedService(users UserSeeder, tokens *TokenManager) *SeedService {
	return &SeedService{users: users, tokens: tokens}
}

// Seed создаёт покупателя, фрилансера и администратора и выписывает им токены.
func (s *SeedService) Seed() ([]SeedUser, error) {
	now := time.Now()
	demo := []models.User{
		{ID: uuid.New(), Name: "Demo Buyer", Email: "buyer@example.com", Role: models.RoleBuyer, CreatedAt: now},
		{ID: uuid.New(), Name: "Demo Freelancer", Email: "freelancer@example.com", Role: models.RoleFreelancer, CreatedAt: now},
		{ID: uuid.New(), Name: "Demo Admin", Email: "admin@example.com", Role: models.RoleAdmin, CreatedAt: now},
	}

	seeded := make([]SeedUser, 0, len(demo))
	for _, user := range demo {
		token, err := s.tokens.Issue(user.ID, user.Role)
		if err != nil {
			return nil, fmt.Errorf("seed service: issue token %w", err)
		}
		s.users.AddUser(user)
		seeded = append(seeded, SeedUser{User: user, Token: token})

		logger.Log.WithFields(logrus.Fields{
			"user_id": user.ID,
			"role":    user.Role,
			"token":   token,
		}).Info("seed service: демо пользователь создан")
	}
	return seeded, nil
}
