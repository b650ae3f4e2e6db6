// Package scoring implements the priority scoring heuristic for
// discovered posts.
package scoring

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"reddit_monitor/internal/model"
)

// Weights and caps of the independent sub-scores. Each term is bounded
// on its own, and the maxima sum to exactly 1.0, so the final clamp is
// a safety net rather than a load-bearing step.
const (
	coverageWeight     = 0.30
	engagementCap      = 0.25
	freshnessMax       = 0.20
	freshnessWindowHrs = 24.0
	urgencyPerHit      = 0.05
	urgencyCap         = 0.15
	questionPerHit     = 0.02
	questionCap        = 0.10
)

// urgencyTerms flag posts that likely need a fast response.
var urgencyTerms = []string{"help", "urgent", "asap", "problem", "error", "broken", "issue", "bug"}

// questionTerms flag posts that are phrased as questions.
var questionTerms = []string{"?", "how", "what", "why", "where", "when", "which", "can someone"}

// Input holds the candidate fields the scoring function reads.
type Input struct {
	Title     string
	Body      string
	Upvotes   int
	Comments  int
	CreatedAt time.Time
}

// Score computes the priority score and category for a candidate post.
// Pure and deterministic: no I/O, the clock enters only through now.
//
// The score is a sum of five independently-capped terms:
//
//	keyword coverage  |matched| / |allKeywords| x 0.30
//	engagement        min(0.25, (upvotes + comments) / 100)
//	freshness         linear decay from 0.20 at age 0 to 0 at age >= 24h
//	urgency bonus     min(0.15, 0.05 x urgency-term hits in title+body)
//	question bonus    min(0.10, 0.02 x question-term hits in title+body)
func Score(in Input, matched, allKeywords []string, now time.Time) (float64, model.Priority) {
	var coverage float64
	if len(allKeywords) > 0 {
		coverage = float64(len(matched)) / float64(len(allKeywords)) * coverageWeight
	}

	engagement := float64(in.Upvotes+in.Comments) / 100.0
	if engagement > engagementCap {
		engagement = engagementCap
	}

	ageHours := now.Sub(in.CreatedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	freshness := freshnessMax - (ageHours/freshnessWindowHrs)*freshnessMax
	if freshness < 0 {
		freshness = 0
	}

	text := strings.ToLower(in.Title + " " + in.Body)

	urgency := urgencyPerHit * float64(countHits(text, urgencyTerms))
	if urgency > urgencyCap {
		urgency = urgencyCap
	}

	question := questionPerHit * float64(countHits(text, questionTerms))
	if question > questionCap {
		question = questionCap
	}

	score := coverage + engagement + freshness + urgency + question
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	return score, model.PriorityForScore(score)
}

// Reason builds the human-readable match explanation stored alongside
// a post.
func Reason(matched []string, score float64, priority model.Priority) string {
	return fmt.Sprintf("matched %s (score %.2f, %s priority)",
		strings.Join(matched, ", "), score, priority)
}

// SortPosts orders posts for display: category rank descending, then
// score descending.
func SortPosts(posts []model.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		ri, rj := posts[i].Priority.Rank(), posts[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return posts[i].Score > posts[j].Score
	})
}

func countHits(text string, terms []string) int {
	hits := 0
	for _, term := range terms {
		hits += strings.Count(text, term)
	}
	return hits
}
