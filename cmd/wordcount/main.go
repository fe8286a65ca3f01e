package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/tymbaca/flowmesh/adapters"
	"github.com/tymbaca/flowmesh/flow"
	"github.com/tymbaca/flowmesh/helpers"
	"github.com/tymbaca/flowmesh/pkg/tracer"
	"github.com/tymbaca/flowmesh/storage/bbolt"
)

// worldSize is the number of simulated ranks this demo spreads the map
// and reduce stages across.
const worldSize int = 4

type sentence struct {
	ID   int64
	Text string
}

type wordCount struct {
	Word  string
	Count int
}

// wordTotal is the number of wordCount rows across the whole corpus (one
// per distinct word per sentence), tallied independently of the per-word
// breakdown.
type wordTotal struct {
	Count int
}

// sentenceIDs numbers each generated sentence as it's built, the natural
// fit for helpers.SerialNumber: a synthetic row id assigned once, before
// the row ever enters the pipeline.
var sentenceIDs helpers.SerialNumber

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	tracer.Init("localhost:4318")

	store, err := bbolt.New("flowmesh.db")
	if err != nil {
		panic(err)
	}
	defer store.Close()

	env := flow.NewEnv(worldSize)

	sentences := make([]sentence, 0, 10)
	for range 10 {
		sentences = append(sentences, sentence{
			ID:   sentenceIDs.Next(),
			Text: gofakeit.Sentence(gofakeit.IntRange(10, 20)),
		})
	}

	rise := flow.Rise[sentence](env, flow.InProcess(), adapters.FromMem(sentences, 1))
	counted := flow.Map(rise, flow.Task(ranks()), splitWords)
	totals := flow.ReduceAll(counted, flow.Hash(ranks(), 1), byWord, sumCounts, store)

	// a second, independent consumer of counted: a plain running-total
	// reduce with no key (every row folds into the same group), gathered
	// onto rank 0 regardless of which rank tallied it.
	grandTotal := flow.Reduce[wordCount, int, wordTotal](
		counted, flow.InProcess(),
		func(wordCount) any { return 0 },
		func() int { return 0 },
		helpers.Count[wordCount],
		func(_ any, acc int) wordTotal { return wordTotal{Count: acc} },
		flow.ReduceConfig{InProcess: true},
	)
	flow.Sink(grandTotal, flow.InProcess(), func(_ context.Context, row wordTotal) {
		slog.Info("per-sentence word rows tallied", "count", row.Count)
	})

	out, err := os.Create("flowmesh.out.log")
	if err != nil {
		panic(err)
	}
	defer out.Close()
	flow.Sink(totals, flow.InProcess(), adapters.Dump[wordCount](out))

	if err := env.Run(ctx); err != nil {
		panic(err)
	}

	fmt.Printf("stats: %s\n", flow.GlobalStats)
}

func ranks() []int {
	out := make([]int, worldSize)
	for i := range out {
		out[i] = i
	}
	return out
}

// splitWords tallies a single sentence's word occurrences, generalizing
// the teacher's countMap from a fixed KeyVal row to wordCount.
func splitWords(_ context.Context, in sentence) flow.Rows[wordCount] {
	tally := make(map[string]int)
	for _, w := range strings.Split(in.Text, " ") {
		if len(w) == 0 {
			continue
		}
		tally[strings.ToLower(w)]++
	}

	out := make(flow.Rows[wordCount], 0, len(tally))
	for word, count := range tally {
		out = append(out, wordCount{Word: word, Count: count})
	}
	return out
}

func byWord(in wordCount) any { return in.Word }

// sumCounts is the teacher's countReduce generalized to ReduceAll's
// materialize-then-fold contract: it sees every partial count for a word
// at once instead of one accumulator step at a time.
func sumCounts(ctx context.Context, key any, vals []wordCount) flow.Rows[wordCount] {
	total := 0
	for _, v := range vals {
		total = helpers.Sum(ctx, total, v.Count)
	}
	return flow.Single(wordCount{Word: key.(string), Count: total})
}
