/*
   Velociraptor - Hunting Evil
   Copyright (C) 2019 Velocidex Innovations.

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published
   by the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
// An interface into persistent data storage.
//
// The store is a versioned key/value table. Each value lives at a
// (subject, attribute) pair and carries a timestamp. Subjects are
// ordered lexically so callers can range scan them by prefix.
package datastore

import (
	"errors"

	"www.velocidex.com/golang/flowsched/config"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
)

type Record struct {
	Subject   string
	Attribute string
	Value     []byte
	Timestamp int64
}

type DataStore interface {
	// Replace the value at (subject, attribute).
	Set(config_obj *config.Config,
		subject, attribute string, value []byte, timestamp int64) error

	// Reads a single value. If there is no value stored the
	// function returns an os.ErrNotExist error.
	Resolve(config_obj *config.Config,
		subject, attribute string) (*Record, error)

	// Returns all the subjects starting with subject_prefix and
	// strictly greater than after_subject that carry the
	// attribute, in lexical order. max_records <= 0 means no limit.
	ScanAttribute(config_obj *config.Config,
		subject_prefix, attribute, after_subject string,
		max_records int) ([]*Record, error)

	// All attributes of the subject starting with the prefix.
	ResolvePrefix(config_obj *config.Config,
		subject, attribute_prefix string) ([]*Record, error)

	// Resolve the attribute on many subjects. Missing subjects are
	// skipped; results are in the order of the subjects given.
	MultiResolve(config_obj *config.Config,
		subjects []string, attribute string) ([]*Record, error)

	DeleteAttributes(config_obj *config.Config,
		subject string, attributes []string) error

	// Removes all attributes of the subject.
	DeleteSubject(config_obj *config.Config, subject string) error

	// Removes all subjects starting with the prefix.
	DeletePrefix(config_obj *config.Config, subject_prefix string) error

	// Called to close all db handles etc. Not thread safe.
	Close()
}
