// Package similarity implements the sequence-alignment ratio used to
// compare normalized ticket text. The semantics match the classic
// SequenceMatcher ratio: 2*M/T, where M is the total length of matching
// blocks found by a greedy longest-match search and T is the combined
// length of both inputs. Order-sensitive; not token based.
package similarity

// Ratio returns a similarity score in [0,1] for two strings.
// Exact equality scores 1.0; an empty input on either side scores 0.0.
func Ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}

	ra := []rune(a)
	rb := []rune(b)

	matched := 0
	for _, m := range matchingBlocks(ra, rb) {
		matched += m.size
	}
	return 2.0 * float64(matched) / float64(len(ra)+len(rb))
}

type match struct {
	a, b, size int
}

// matchingBlocks finds non-overlapping matching blocks by repeatedly
// locating the longest match in the remaining regions, left to right.
func matchingBlocks(a, b []rune) []match {
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	type region struct {
		alo, ahi, blo, bhi int
	}

	queue := []region{{0, len(a), 0, len(b)}}
	var matches []match

	for len(queue) > 0 {
		reg := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		m := longestMatch(a, b2j, reg.alo, reg.ahi, reg.blo, reg.bhi)
		if m.size == 0 {
			continue
		}
		matches = append(matches, m)
		if reg.alo < m.a && reg.blo < m.b {
			queue = append(queue, region{reg.alo, m.a, reg.blo, m.b})
		}
		if m.a+m.size < reg.ahi && m.b+m.size < reg.bhi {
			queue = append(queue, region{m.a + m.size, reg.ahi, m.b + m.size, reg.bhi})
		}
	}
	return matches
}

// longestMatch finds the longest matching block of a[alo:ahi] in
// b[blo:bhi]. Of equally long matches it returns the one starting
// earliest in a, then earliest in b.
func longestMatch(a []rune, b2j map[rune][]int, alo, ahi, blo, bhi int) match {
	best := match{a: alo, b: blo}
	j2len := make(map[int]int)

	for i := alo; i < ahi; i++ {
		newj2len := make(map[int]int)
		for _, j := range b2j[a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > best.size {
				best = match{a: i - k + 1, b: j - k + 1, size: k}
			}
		}
		j2len = newj2len
	}
	return best
}
