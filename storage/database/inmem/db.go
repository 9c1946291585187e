// Package inmemdb is an in-memory store used by tests and by the `memory` database engine.
package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/course"
	"github.com/trezcool/coursehub/core/enrollment"
	"github.com/trezcool/coursehub/core/settings"
	"github.com/trezcool/coursehub/core/user"
)

type (
	DB struct {
		user     *userTable
		course   *courseTable
		settings *settingsTable
	}

	// userRow owns the user's enrollments, in enrollment order.
	userRow struct {
		user.User
		enrollments []enrollment.Record
	}

	userTable struct {
		sync.RWMutex
		table map[string]*userRow
	}

	courseRow struct {
		course.Course
		seq int
	}

	courseTable struct {
		sync.RWMutex
		seq     int
		courses map[string]*courseRow
		modules map[string]*course.Module
	}

	settingsTable struct {
		sync.RWMutex
		toggles map[settings.EventType]bool
	}
)

func Open() *DB {
	db := &DB{
		user:     new(userTable),
		course:   new(courseTable),
		settings: new(settingsTable),
	}
	db.Reset()
	return db
}

// Reset drops every row. Repositories opened on db stay usable.
func (db *DB) Reset() {
	db.user.Lock()
	db.user.table = make(map[string]*userRow)
	db.user.Unlock()

	db.course.Lock()
	db.course.seq = 0
	db.course.courses = make(map[string]*courseRow)
	db.course.modules = make(map[string]*course.Module)
	db.course.Unlock()

	db.settings.Lock()
	db.settings.toggles = make(map[settings.EventType]bool)
	db.settings.Unlock()
}

type transactor struct{}

// NewTransactor returns a Transactor that runs fn without a transaction; each repository call is atomic on its own.
func NewTransactor() core.Transactor {
	return transactor{}
}

func (transactor) WithinTx(_ context.Context, fn func(exec core.DBExecutor) error) error {
	return fn(nil)
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
