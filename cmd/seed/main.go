package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-agenda/internal/appointment"
	"github.com/hackgods/clinic-agenda/internal/config"
	"github.com/hackgods/clinic-agenda/internal/db"
	"github.com/hackgods/clinic-agenda/internal/logger"
	"github.com/hackgods/clinic-agenda/internal/roster"
	"github.com/hackgods/clinic-agenda/internal/scheduling"
)

var specialties = []string{
	"Clínico Geral",
	"Ortodontia",
	"Endodontia",
	"Periodontia",
	"Implantodontia",
	"Odontopediatria",
	"Prótese Dentária",
	"Cirurgia Bucomaxilofacial",
}

// shifts are the working patterns a seeded professional can get.
var shifts = [][]string{
	{"08:00-12:00", "13:00-18:00"},
	{"08:00-12:00"},
	{"13:00-19:00"},
	{"09:00-17:00"},
	{"07:30-11:30", "14:00-20:00"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	log := logger.New(cfg.Env, cfg.LogLevel, os.Stdout)
	log.Info().Msg("seed starting")

	count := 12
	if v := os.Getenv("SEED_PROFESSIONALS"); v != "" {
		if count, err = strconv.Atoi(v); err != nil || count <= 0 {
			log.Fatal().Str("SEED_PROFESSIONALS", v).Msg("must be a positive integer")
		}
	}

	gofakeit.Seed(time.Now().UnixNano())

	profs, err := fakeProfessionals(count)
	if err != nil {
		log.Fatal().Err(err).Msg("generate professionals")
	}

	if out := os.Getenv("SEED_ROSTER_OUT"); out != "" {
		if err := roster.Save(out, profs); err != nil {
			log.Fatal().Err(err).Msg("write roster")
		}
		log.Info().Str("file", out).Int("professionals", len(profs)).Msg("roster written")
	}

	if cfg.PostgresDSN == "" {
		log.Warn().Msg("POSTGRES_DSN not set, skipping database seed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	repo := appointment.NewPgRepository(pool, cfg.ClinicID)
	for i, p := range profs {
		if err := repo.SaveProfessional(ctx, p); err != nil {
			log.Fatal().Err(err).Str("professional_id", p.ID).Msg("seed professional")
		}
		log.Debug().Int("n", i+1).Str("name", p.Name).Msg("professional seeded")
	}

	log.Info().Int("professionals", len(profs)).Str("clinic_id", cfg.ClinicID).Msg("seed complete")
}

func fakeProfessionals(count int) ([]scheduling.Professional, error) {
	out := make([]scheduling.Professional, 0, count)
	for range count {
		title := "Dr."
		if gofakeit.Gender() == "female" {
			title = "Dra."
		}

		raw := make(map[string][]string)
		shift := shifts[gofakeit.Number(0, len(shifts)-1)]
		for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
			if gofakeit.Number(1, 10) <= 8 {
				raw[day] = shift
			}
		}
		if gofakeit.Bool() {
			raw["saturday"] = []string{"08:00-12:00"}
		}

		hours, err := roster.ParseHours(raw)
		if err != nil {
			return nil, fmt.Errorf("fake hours: %w", err)
		}

		out = append(out, scheduling.Professional{
			ID:        uuid.NewString(),
			Name:      fmt.Sprintf("%s %s %s", title, gofakeit.FirstName(), gofakeit.LastName()),
			Specialty: specialties[gofakeit.Number(0, len(specialties)-1)],
			Hours:     hours,
		})
	}
	return out, nil
}
