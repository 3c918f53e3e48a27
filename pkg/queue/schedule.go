package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes the next run time of a periodic task.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time { return from.Add(s.every) }
func (s intervalSchedule) String() string                { return fmt.Sprintf("every %v", s.every) }

type dailySchedule struct {
	hour, minute int
}

func (s dailySchedule) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string { return fmt.Sprintf("daily at %02d:%02d", s.hour, s.minute) }

type cronSchedule struct {
	spec  string
	sched cron.Schedule
}

func (s cronSchedule) Next(from time.Time) time.Time { return s.sched.Next(from) }
func (s cronSchedule) String() string                { return "cron " + s.spec }

// EveryInterval runs a task every d
func EveryInterval(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

// EveryMinutes runs a task every n minutes
func EveryMinutes(n int) Schedule {
	return intervalSchedule{every: time.Duration(n) * time.Minute}
}

// DailyAt runs a task once a day at hour:minute in the clock location
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: hour, minute: minute}
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Cron parses a standard five-field cron expression or a descriptor such
// as "@daily" or "@every 15m".
func Cron(spec string) (Schedule, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidSchedule, err)
	}
	return cronSchedule{spec: spec, sched: sched}, nil
}

// MustCron is Cron for specs known at compile time.
func MustCron(spec string) Schedule {
	s, err := Cron(spec)
	if err != nil {
		panic(err)
	}
	return s
}
