// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

func openTestBadger(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadger(InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerAppendAndRead(t *testing.T) {
	ctx := context.Background()
	s := openTestBadger(t)

	n, err := s.CurrentVersionNumber(ctx, "trip-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Put(ctx, "trip-1", testVersion(1)))
	require.NoError(t, s.Put(ctx, "trip-1", testVersion(2)))

	n, err = s.CurrentVersionNumber(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, err := s.Get(ctx, "trip-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Number)
	assert.Equal(t, "Tokyo, Japan", v.Snapshot["destination"])

	_, err = s.Get(ctx, "trip-1", 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerRejectsNonSequentialNumbers(t *testing.T) {
	ctx := context.Background()
	s := openTestBadger(t)

	assert.ErrorIs(t, s.Put(ctx, "trip-1", testVersion(2)), ErrConflict)
	require.NoError(t, s.Put(ctx, "trip-1", testVersion(1)))
	assert.ErrorIs(t, s.Put(ctx, "trip-1", testVersion(1)), ErrConflict)
}

func TestBadgerListVersionsOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestBadger(t)

	// Enough versions to cross a single-digit boundary, proving the
	// zero-padded keys iterate numerically.
	for i := 1; i <= 12; i++ {
		require.NoError(t, s.Put(ctx, "trip-1", testVersion(i)))
	}

	versions, err := s.ListVersions(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, versions, 12)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Number)
	}
}

func TestBadgerTripsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := openTestBadger(t)

	require.NoError(t, s.Put(ctx, "trip-a", testVersion(1)))
	require.NoError(t, s.Put(ctx, "trip-b", testVersion(1)))
	require.NoError(t, s.Put(ctx, "trip-b", testVersion(2)))

	na, err := s.CurrentVersionNumber(ctx, "trip-a")
	require.NoError(t, err)
	nb, err := s.CurrentVersionNumber(ctx, "trip-b")
	require.NoError(t, err)
	assert.Equal(t, 1, na)
	assert.Equal(t, 2, nb)

	versions, err := s.ListVersions(ctx, "trip-a")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestBadgerSectionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestBadger(t)

	_, err := s.GetSection(ctx, "trip-1", datatypes.SectionBudget)
	assert.ErrorIs(t, err, ErrNotFound)

	content := datatypes.SectionContent{
		SectionID:   datatypes.SectionBudget,
		Body:        "## Budget\n\nDaily estimate: 120 USD.",
		Model:       "template",
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.Save(ctx, "trip-1", datatypes.SectionBudget, content, "run-1"))

	got, err := s.GetSection(ctx, "trip-1", datatypes.SectionBudget)
	require.NoError(t, err)
	assert.Equal(t, content.Body, got.Body)
	assert.Equal(t, content.SectionID, got.SectionID)

	// Overwrite wins.
	content.Body = "updated"
	require.NoError(t, s.Save(ctx, "trip-1", datatypes.SectionBudget, content, "run-2"))
	got, err = s.GetSection(ctx, "trip-1", datatypes.SectionBudget)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Body)
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenBadger(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "trip-1", testVersion(1)))
	require.NoError(t, s.Close())

	s, err = OpenBadger(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	defer s.Close()

	n, err := s.CurrentVersionNumber(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenBadgerRequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}
