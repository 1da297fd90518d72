package pipeline_test

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/FranksOps/reelrank/internal/errlog"
	"github.com/FranksOps/reelrank/internal/exporter"
	"github.com/FranksOps/reelrank/internal/hiker"
	"github.com/FranksOps/reelrank/internal/model"
	"github.com/FranksOps/reelrank/internal/pipeline"
	"github.com/FranksOps/reelrank/internal/retry"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// hikerStub mimics the three HikerAPI endpoints used by the pipeline.
type hikerStub struct {
	mu        sync.Mutex
	reelCalls map[string]int
}

func (h *hikerStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch r.URL.Path {
	case "/v3/fbsearch/accounts":
		fmt.Fprint(w, `{"users":[
			{"pk":"101","username":"alpha","full_name":"Alpha One"},
			{"pk":"102","username":"bravo"},
			{"user":{"pk":"103","username":"charlie"}},
			{"pk":"101","username":"alpha"}
		],"has_more":false}`)

	case "/v2/user/by/id":
		switch q.Get("id") {
		case "102":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"detail":"Target user not found"}`)
		case "101":
			fmt.Fprint(w, `{"user":{"pk":"101","username":"alpha","full_name":"Alpha One","follower_count":500,"biography":"hi"}}`)
		default:
			fmt.Fprintf(w, `{"user":{"pk":%q,"username":"charlie","follower_count":900}}`, q.Get("id"))
		}

	case "/v1/user/clips/chunk":
		id := q.Get("user_id")
		h.mu.Lock()
		h.reelCalls[id]++
		n := h.reelCalls[id]
		h.mu.Unlock()

		// the first listing for 103 hits a transient server error
		if id == "103" && n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `[[
			{"media":{"pk":"%[1]s-a","code":"AA%[1]s","play_count":10,"taken_at":1700000000,"caption":{"text":"first"}}},
			{"pk":"%[1]s-b","code":"BB%[1]s","view_count":50,"taken_at":1700000100,"like_count":3},
			{"pk":"%[1]s-c","code":"CC%[1]s","play_count":50,"taken_at":1700000200}
		], null]`, id)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *hikerStub) calls(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reelCalls[id]
}

var _ = Describe("End to end", func() {
	var (
		stub   *hikerStub
		server *httptest.Server
		dir    string
	)

	BeforeEach(func() {
		stub = &hikerStub{reelCalls: map[string]int{}}
		server = httptest.NewServer(stub)
		DeferCleanup(server.Close)
		dir = GinkgoT().TempDir()
	})

	It("searches, ranks, logs failures and exports", func() {
		client, err := hiker.New(hiker.Config{
			BaseURL:        server.URL,
			Token:          "key",
			RequestTimeout: time.Second,
			Retry:          retry.Policy{MaxRetries: 2, Delay: time.Millisecond},
		})
		Expect(err).NotTo(HaveOccurred())

		logPath := filepath.Join(dir, "error_log.jsonl")
		sink := errlog.New(logPath, "run-1", nil)

		rep := pipeline.New(client, sink, pipeline.Config{
			RecentReels: 12,
			TopK:        2,
			Concurrency: 3,
		}, nil).Run(context.Background(), []string{"coffee"})
		Expect(sink.Close()).To(Succeed())

		By("ranking the surviving accounts")
		Expect(rep.Attempted).To(Equal(3))
		Expect(rep.Entries).To(HaveLen(2))
		Expect(rep.Entries[0].Account.ID).To(Equal("103"))
		Expect(rep.Entries[1].Account.ID).To(Equal("101"))
		Expect(rep.Entries[1].Account.Surname).To(Equal("One"))
		for _, e := range rep.Entries {
			Expect(e.TopReels).To(HaveLen(2))
			Expect(e.TopReels[0].Code).To(HavePrefix("CC"))
			Expect(e.TopReels[1].Code).To(HavePrefix("BB"))
		}

		By("never listing reels for the account whose profile failed")
		Expect(stub.calls("102")).To(BeZero())
		Expect(stub.calls("103")).To(Equal(2))

		By("logging only the permanent failure")
		log, err := errlog.ReadFile(logPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(log.Malformed).To(BeZero())
		Expect(log.Records).To(HaveLen(1))
		rec := log.Records[0]
		Expect(rec.Context).To(Equal(model.ContextProfileFetch))
		Expect(rec.ErrorType).To(Equal("not_found"))
		Expect(rec.PK).To(Equal("102"))
		Expect(rec.RunID).To(Equal("run-1"))
		Expect(rec.TS.IsZero()).To(BeFalse())

		By("exporting every artifact")
		paths, err := exporter.New(nil).Export(rep.Entries, filepath.Join(dir, "out", "results"))
		Expect(err).NotTo(HaveOccurred())

		f, err := os.Open(paths.AccountsJSONL)
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		var lines []model.ResultEntry
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			var e model.ResultEntry
			Expect(json.Unmarshal(sc.Bytes(), &e)).To(Succeed())
			lines = append(lines, e)
		}
		Expect(lines).To(Equal(rep.Entries))

		rf, err := os.Open(paths.ReelsCSV)
		Expect(err).NotTo(HaveOccurred())
		defer rf.Close()
		rows, err := csv.NewReader(rf).ReadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1 + 4))
	})
})
