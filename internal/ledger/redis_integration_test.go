//go:build integration

package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"docsign/internal/ledger"
	"docsign/pkg/testutil/containers"
)

type RedisLedgerSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	ledger *ledger.RedisLedger
}

func TestRedisLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLedgerSuite))
}

func (s *RedisLedgerSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.ledger = ledger.NewRedisLedger(s.redis.Client, 5*time.Second)
}

func (s *RedisLedgerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLedgerSuite) TestAppendAndFind() {
	receipt, err := s.ledger.Append(context.Background(), ledger.Entry{
		EntityType:  ledger.EntitySignature,
		EntityID:    "doc-1",
		PayloadHash: "abc",
		Submitter:   "user-1",
	})
	s.Require().NoError(err)
	s.Equal(uint64(1), receipt.Sequence)
	s.NotEmpty(receipt.ReceiptID)
	s.NotEmpty(receipt.ContentHash)

	records, err := s.ledger.Find(context.Background(), ledger.EntitySignature, "doc-1")
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal("abc", records[0].Entry.PayloadHash)
	s.Equal("user-1", records[0].Entry.Submitter)
	s.Equal(receipt.ReceiptID, records[0].Receipt.ReceiptID)
	s.Equal(receipt.ContentHash, records[0].Receipt.ContentHash)
}

func (s *RedisLedgerSuite) TestSequenceSurvivesAcrossEntities() {
	var last uint64
	for i := 0; i < 5; i++ {
		receipt, err := s.ledger.Append(context.Background(), ledger.Entry{
			EntityType:  ledger.EntityVerification,
			EntityID:    fmt.Sprintf("user-%d", i),
			PayloadHash: "h",
			Submitter:   "system",
		})
		s.Require().NoError(err)
		s.Greater(receipt.Sequence, last)
		last = receipt.Sequence
	}
	s.Equal(uint64(5), last)
}

func (s *RedisLedgerSuite) TestConcurrentAppendsGetUniqueSequences() {
	const n = 50

	seqs := make([]uint64, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			receipt, err := s.ledger.Append(context.Background(), ledger.Entry{
				EntityType:  ledger.EntitySignature,
				EntityID:    "contested-doc",
				PayloadHash: fmt.Sprintf("h-%d", i),
				Submitter:   fmt.Sprintf("user-%d", i),
			})
			if err != nil {
				return err
			}
			seqs[i] = receipt.Sequence
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	seen := make(map[uint64]bool, n)
	for _, seq := range seqs {
		s.False(seen[seq], "duplicate sequence %d", seq)
		seen[seq] = true
	}

	records, err := s.ledger.Find(context.Background(), ledger.EntitySignature, "contested-doc")
	s.Require().NoError(err)
	s.Len(records, n)
}

func (s *RedisLedgerSuite) TestHashChainLinksEntries() {
	first, err := s.ledger.Append(context.Background(), ledger.Entry{
		EntityType: ledger.EntitySignature, EntityID: "doc-a", PayloadHash: "same", Submitter: "u",
	})
	s.Require().NoError(err)

	second, err := s.ledger.Append(context.Background(), ledger.Entry{
		EntityType: ledger.EntitySignature, EntityID: "doc-a", PayloadHash: "same", Submitter: "u",
	})
	s.Require().NoError(err)

	s.NotEqual(first.ContentHash, second.ContentHash)
}
