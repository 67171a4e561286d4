package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jidhr/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedRooted(t *testing.T, s *store.Store, sura, aya, pos int, root string) *store.Token {
	t.Helper()
	ctx := context.Background()
	tok := &store.Token{Sura: sura, Aya: aya, Position: pos, TextAr: root, Normalized: root}
	require.NoError(t, s.InsertToken(ctx, tok))
	require.NoError(t, s.ApplyExtraction(ctx, tok.ID, root, nil, store.StatusVerified, 1.0, ""))
	return tok
}

func TestEncodeDecodeMembers(t *testing.T) {
	small := []int64{1, 2, 3}
	data, codec, err := encodeMembers(small, 400)
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, codec)

	got, err := DecodeMembers(data, codec)
	require.NoError(t, err)
	assert.Equal(t, small, got)

	big := make([]int64, 1000)
	for i := range big {
		big[i] = int64(i + 1)
	}
	data, codec, err = encodeMembers(big, 400)
	require.NoError(t, err)
	assert.Equal(t, CodecJSONXZ, codec)

	got, err = DecodeMembers(data, codec)
	require.NoError(t, err)
	assert.Equal(t, big, got)

	_, err = DecodeMembers([]byte("x"), "zstd")
	assert.Error(t, err)
}

func TestRebuildSmallGroups(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	a := seedRooted(t, s, 1, 1, 0, "كتب")
	b := seedRooted(t, s, 1, 2, 0, "كتب")
	c := seedRooted(t, s, 2, 1, 0, "قول")
	seedToken := &store.Token{Sura: 3, Aya: 1, Position: 0, TextAr: "x", Normalized: "x"}
	require.NoError(t, s.InsertToken(ctx, seedToken))

	ix := New(DefaultConfig(), s, s, zap.NewNop())
	sum, err := ix.Run(ctx, store.CorpusRange{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.RootsUpdated)
	assert.Equal(t, 3, sum.TokensReindexed, "rootless tokens are not indexed")

	root, err := s.GetRoot(ctx, "كتب")
	require.NoError(t, err)
	assert.Equal(t, 2, root.TokenCount)
	assert.Equal(t, CodecJSON, root.MembersCodec)

	ids, err := DecodeMembers(root.Members, root.MembersCodec)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, ids, "members in corpus order")

	gotA, err := s.GetToken(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, gotA.Refs, "refs exclude the token itself")

	gotC, err := s.GetToken(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, gotC.Refs)
}

func TestRebuildCompressesLargeGroups(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	const n = 500
	for i := 0; i < n; i++ {
		seedRooted(t, s, 1+i/286, 1+(i%286)/7, i%7, "قول")
	}

	cfg := DefaultConfig()
	cfg.MaxRefs = 100
	ix := New(cfg, s, s, zap.NewNop())
	sum, err := ix.Run(ctx, store.CorpusRange{})
	require.NoError(t, err)
	assert.Equal(t, n, sum.TokensReindexed)

	root, err := s.GetRoot(ctx, "قول")
	require.NoError(t, err)
	assert.Equal(t, n, root.TokenCount)
	assert.Equal(t, CodecJSONXZ, root.MembersCodec)

	ids, err := DecodeMembers(root.Members, root.MembersCodec)
	require.NoError(t, err)
	assert.Len(t, ids, n, "compression is lossless for the full membership")

	// Individual tokens carry only the bounded sample.
	tok, err := s.GetToken(ctx, ids[0])
	require.NoError(t, err)
	assert.Len(t, tok.Refs, 100)
	assert.NotContains(t, tok.Refs, tok.ID)
}

func TestRebuildIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedRooted(t, s, 1, 1, 0, "كتب")
	seedRooted(t, s, 1, 1, 1, "كتب")

	ix := New(DefaultConfig(), s, s, zap.NewNop())
	first, err := ix.Run(ctx, store.CorpusRange{})
	require.NoError(t, err)
	second, err := ix.Run(ctx, store.CorpusRange{})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	root, err := s.GetRoot(ctx, "كتب")
	require.NoError(t, err)
	assert.Equal(t, 2, root.TokenCount, "counts do not inflate across rebuilds")
}

func TestRebuildClearsRootsEmptiedByCorrection(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tok := seedRooted(t, s, 1, 1, 0, "كتب")

	ix := New(DefaultConfig(), s, s, zap.NewNop())
	_, err := ix.Run(ctx, store.CorpusRange{})
	require.NoError(t, err)

	// The token's root gets corrected, then the index is rebuilt.
	require.NoError(t, s.ApplyExtraction(ctx, tok.ID, "قول", nil, store.StatusVerified, 1.0, ""))
	_, err = ix.Run(ctx, store.CorpusRange{})
	require.NoError(t, err)

	old, err := s.GetRoot(ctx, "كتب")
	require.NoError(t, err)
	assert.Zero(t, old.TokenCount)
	ids, err := DecodeMembers(old.Members, old.MembersCodec)
	require.NoError(t, err)
	assert.Empty(t, ids, "the emptied root keeps no stale membership")

	moved, err := s.GetRoot(ctx, "قول")
	require.NoError(t, err)
	assert.Equal(t, 1, moved.TokenCount)
	ids, err = DecodeMembers(moved.Members, moved.MembersCodec)
	require.NoError(t, err)
	assert.Equal(t, []int64{tok.ID}, ids)
}

func TestRangedRebuildKeepsGlobalMembership(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	a := seedRooted(t, s, 1, 1, 0, "كتب")
	b := seedRooted(t, s, 2, 1, 0, "كتب")

	ix := New(DefaultConfig(), s, s, zap.NewNop())
	_, err := ix.Run(ctx, store.CorpusRange{FromSura: 2, ToSura: 2})
	require.NoError(t, err)

	root, err := s.GetRoot(ctx, "كتب")
	require.NoError(t, err)
	assert.Equal(t, 2, root.TokenCount, "a ranged run never narrows a root to its in-range subset")
	ids, err := DecodeMembers(root.Members, root.MembersCodec)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, ids)
}

func TestRelatedRootsWithinEditDistance(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedRooted(t, s, 1, 1, 0, "كتب")
	seedRooted(t, s, 1, 1, 1, "كتم")
	seedRooted(t, s, 1, 1, 2, "قول")

	ix := New(DefaultConfig(), s, s, zap.NewNop())
	_, err := ix.Run(ctx, store.CorpusRange{})
	require.NoError(t, err)

	root, err := s.GetRoot(ctx, "كتب")
	require.NoError(t, err)
	assert.Equal(t, []string{"كتم"}, root.Related)

	far, err := s.GetRoot(ctx, "قول")
	require.NoError(t, err)
	assert.Empty(t, far.Related)
}

func TestSampleRefs(t *testing.T) {
	ids := make([]int64, 10)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	all := sampleRefs(ids, 5, 100)
	assert.Len(t, all, 9)
	assert.NotContains(t, all, int64(5))

	sampled := sampleRefs(ids, 5, 4)
	require.Len(t, sampled, 4)
	assert.Equal(t, sampled[0], int64(1), "sample starts at the first sibling")

	seen := map[int64]bool{}
	for _, id := range sampled {
		assert.False(t, seen[id], fmt.Sprintf("duplicate ref %d", id))
		seen[id] = true
	}
}
