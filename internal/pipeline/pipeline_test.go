package pipeline_test

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/FranksOps/reelrank/internal/hiker"
	"github.com/FranksOps/reelrank/internal/model"
	"github.com/FranksOps/reelrank/internal/pipeline"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func candidatesFor(from, to int) []model.AccountCandidate {
	out := make([]model.AccountCandidate, 0, to-from+1)
	for i := from; i <= to; i++ {
		id := strconv.Itoa(i)
		out = append(out, model.AccountCandidate{PK: id, Username: "user" + id})
	}
	return out
}

var _ = Describe("Pipeline", func() {
	var (
		api  *fakeAPI
		sink *memSink
		cfg  pipeline.Config
	)

	BeforeEach(func() {
		api = newFakeAPI()
		sink = &memSink{}
		cfg = pipeline.Config{RecentReels: 12, TopK: 3, Concurrency: 4}

		api.search["coffee"] = candidatesFor(1, 20)
		api.search["tea"] = candidatesFor(15, 30)
		for i := 1; i <= 30; i++ {
			// several follower ties to exercise the secondary order
			api.addAccount(strconv.Itoa(i), int64(i%7)*1000, 1+i%9)
		}
	})

	run := func(queries ...string) pipeline.Report {
		return pipeline.New(api, sink, cfg, nil).Run(context.Background(), queries)
	}

	Describe("Run", func() {
		It("produces the same result at any concurrency", func() {
			cfg.Concurrency = 1
			serial := run("coffee", "tea")

			sink = &memSink{}
			cfg.Concurrency = 20
			parallel := run("coffee", "tea")

			Expect(serial.Entries).To(HaveLen(30))
			Expect(parallel.Entries).To(Equal(serial.Entries))
		})

		It("never runs more accounts at once than the bound", func() {
			api.delay = 15 * time.Millisecond
			cfg.Concurrency = 3

			rep := run("coffee", "tea")

			Expect(rep.Attempted).To(Equal(30))
			Expect(api.maxInFlight.Load()).To(BeNumerically("<=", 3))
			Expect(api.maxInFlight.Load()).To(BeNumerically(">", 1))
		})

		It("orders by follower count, then by first appearance", func() {
			rep := run("coffee", "tea")

			for i := 1; i < len(rep.Entries); i++ {
				prev, cur := rep.Entries[i-1].Account, rep.Entries[i].Account
				Expect(prev.FollowerCount).To(BeNumerically(">=", cur.FollowerCount))
				if prev.FollowerCount == cur.FollowerCount {
					p, _ := strconv.Atoi(prev.ID)
					c, _ := strconv.Atoi(cur.ID)
					Expect(p).To(BeNumerically("<", c))
				}
			}
		})

		It("processes each account once and keeps at most top K reels", func() {
			rep := run("coffee", "tea")

			seen := map[string]bool{}
			for _, e := range rep.Entries {
				Expect(seen).NotTo(HaveKey(e.Account.ID))
				seen[e.Account.ID] = true
				Expect(len(e.TopReels)).To(BeNumerically("<=", cfg.TopK))
				Expect(api.calls(api.profileCalls, e.Account.ID)).To(Equal(1))
				Expect(api.calls(api.reelCalls, e.Account.ID)).To(Equal(1))
			}
			Expect(sink.records()).To(BeEmpty())
		})

		It("caps unique accounts across queries", func() {
			cfg.MaxAccounts = 5
			rep := run("coffee", "tea")
			Expect(rep.Attempted).To(Equal(5))
			Expect(rep.Entries).To(HaveLen(5))
		})

		It("tags each candidate with the query that first found it", func() {
			cands := pipeline.New(api, sink, cfg, nil).Search(context.Background(), []string{"coffee", "tea"})
			Expect(cands).To(HaveLen(30))
			Expect(cands[14].PK).To(Equal("15"))
			Expect(cands[14].Query).To(Equal("coffee"))
			Expect(cands[29].Query).To(Equal("tea"))
		})
	})

	Describe("failure isolation", func() {
		It("drops an account whose profile fails without fetching its reels", func() {
			api.profileErr["3"] = &hiker.Error{Op: hiker.OpProfile, Kind: hiker.KindNotFound, StatusCode: 404, Attempts: 1}

			rep := run("coffee")

			Expect(rep.Failed).To(Equal(1))
			Expect(rep.Entries).To(HaveLen(19))
			for _, e := range rep.Entries {
				Expect(e.Account.ID).NotTo(Equal("3"))
			}
			Expect(api.calls(api.reelCalls, "3")).To(BeZero())

			recs := sink.records()
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].Context).To(Equal(model.ContextProfileFetch))
			Expect(recs[0].PK).To(Equal("3"))
			Expect(recs[0].Query).To(Equal("coffee"))
		})

		It("keeps an account with no reels when its reel listing fails", func() {
			api.reelErr["4"] = &hiker.Error{Op: hiker.OpReels, Kind: hiker.KindServer, StatusCode: 500, Attempts: 3}

			rep := run("coffee")

			Expect(rep.Degraded).To(Equal(1))
			Expect(rep.Entries).To(HaveLen(20))
			Expect(rep.Entries).To(ContainElement(And(
				HaveField("Account.ID", "4"),
				HaveField("TopReels", BeEmpty()),
			)))

			recs := sink.records()
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].Context).To(Equal(model.ContextReelFetch))
			Expect(recs[0].UserID).To(Equal("4"))
			Expect(recs[0].Attempts).To(Equal(3))
		})

		It("records a failed search once and keeps what it returned", func() {
			api.search["broken"] = candidatesFor(40, 41)
			api.addAccount("40", 1, 1)
			api.addAccount("41", 1, 1)
			api.searchErr["broken"] = &hiker.Error{Op: hiker.OpSearch, Kind: hiker.KindRateLimited, StatusCode: 429, Attempts: 3}

			rep := run("broken", "tea")

			Expect(rep.Entries).To(HaveLen(18))
			recs := sink.records()
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].Context).To(Equal(model.ContextSearch))
			Expect(recs[0].ErrorType).To(Equal("rate_limited"))
			Expect(recs[0].Query).To(Equal("broken"))
		})

		It("continues after many failures", func() {
			for i := 1; i <= 20; i += 2 {
				api.profileErr[strconv.Itoa(i)] = errors.New("profile unavailable")
			}
			cfg.Concurrency = 8

			rep := run("coffee")

			Expect(rep.Attempted).To(Equal(20))
			Expect(rep.Failed).To(Equal(10))
			Expect(rep.Entries).To(HaveLen(10))
			Expect(sink.records()).To(HaveLen(10))
			for _, r := range sink.records() {
				Expect(r.ErrorType).To(Equal("errors.errorString"))
				Expect(r.ErrorMessage).To(Equal("profile unavailable"))
			}
		})
	})

	Describe("Scheduler", func() {
		It("starts nothing once the context is done", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			w := pipeline.NewWorker(api, sink, 12, 3, nil)
			rep := pipeline.NewScheduler(w, 4, nil).Run(ctx, candidatesFor(1, 10))

			Expect(rep.Skipped).To(Equal(10))
			Expect(rep.Attempted).To(BeZero())
			Expect(rep.Entries).NotTo(BeNil())
			Expect(rep.Entries).To(BeEmpty())
		})

		It("treats a non-positive bound as serial", func() {
			api.delay = 5 * time.Millisecond
			w := pipeline.NewWorker(api, sink, 12, 3, nil)

			rep := pipeline.NewScheduler(w, 0, nil).Run(context.Background(), candidatesFor(1, 5))

			Expect(rep.Entries).To(HaveLen(5))
			Expect(api.maxInFlight.Load()).To(BeEquivalentTo(1))
		})
	})
})
