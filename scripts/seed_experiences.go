package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"comer/internal/config"
	"comer/internal/database"
	"comer/internal/database/postgres"
	"comer/internal/domain"
	"comer/internal/models"
	"comer/internal/repository"
	"comer/internal/service"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

type seedFile struct {
	Owner       string           `yaml:"owner"`
	Experiences []seedExperience `yaml:"experiences"`
}

type seedExperience struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Languages   []string `yaml:"languages"`
	Country     string   `yaml:"country"`
	City        string   `yaml:"city"`
	Address     string   `yaml:"address"`
	Tags        []string `yaml:"tags"`
	StartDate   string   `yaml:"start_date"`
	EndDate     string   `yaml:"end_date"`
	StartTime   string   `yaml:"start_time"`
	EndTime     string   `yaml:"end_time"`
	MaxGuest    int      `yaml:"max_guest"`
	Price       float64  `yaml:"price"`
	Currency    string   `yaml:"currency"`
}

func (s seedExperience) input() (models.ExperienceInput, error) {
	start, err := civil.ParseDate(s.StartDate)
	if err != nil {
		return models.ExperienceInput{}, fmt.Errorf("%q: start_date: %w", s.Title, err)
	}
	end, err := civil.ParseDate(s.EndDate)
	if err != nil {
		return models.ExperienceInput{}, fmt.Errorf("%q: end_date: %w", s.Title, err)
	}
	return models.ExperienceInput{
		Title:       s.Title,
		Description: s.Description,
		Languages:   s.Languages,
		Country:     s.Country,
		City:        s.City,
		Address:     s.Address,
		Tags:        s.Tags,
		StartDate:   start,
		EndDate:     end,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		MaxGuest:    s.MaxGuest,
		Price:       s.Price,
		Currency:    s.Currency,
	}, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		seedPath   = flag.String("seed", "configs/experiences.yaml", "path to the experiences seed file")
		configPath = flag.String("config", "configs/config.yaml", "path to config.yaml")
	)
	flag.Parse()

	data, err := os.ReadFile(*seedPath)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var seed seedFile
	if err = yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}
	if seed.Owner == "" {
		return errors.New("seed owner is required")
	}
	if len(seed.Experiences) == 0 {
		return errors.New("no experiences in seed")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	repo, err := openRepository(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	owner, err := repo.GetUserByEmail(ctx, seed.Owner)
	if err != nil {
		return fmt.Errorf("seed owner %s: %w", seed.Owner, err)
	}

	bookings := service.NewBookingService(repo, repository.NewMemoryLedgerCache(), nil, nil, cfg.Booking, 0, &logger)
	experiences := service.NewExperienceService(repo, bookings, nil, nil, nil, cfg.Booking, 0, &logger)

	created := 0
	for _, s := range seed.Experiences {
		in, err := s.input()
		if err != nil {
			return err
		}
		exp, err := experiences.Create(ctx, owner.ID, in, nil)
		if err != nil {
			logger.Error().Err(err).Str("title", s.Title).Msg("skip experience")
			continue
		}
		created++
		logger.Info().Str("experience_id", exp.ID).Str("title", exp.Title).Msg("experience seeded")
	}

	logger.Info().Int("created", created).Int("total", len(seed.Experiences)).Msg("seed finished")
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.Repository, error) {
	if cfg.Database.Driver == config.DriverPostgres {
		return postgres.Open(ctx, cfg.Database.Postgres.DSN(), logger)
	}
	return database.NewDB(cfg.Database.Path, logger)
}
