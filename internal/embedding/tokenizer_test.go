package embedding

import "testing"

func TestKmerTokenizer_Tokenize(t *testing.T) {
	tok := NewKmerTokenizer()
	ids, mask := tok.Tokenize("AAAAAAt", 5)

	if len(ids) != 5 || len(mask) != 5 {
		t.Fatalf("lengths = %d/%d, want 5", len(ids), len(mask))
	}
	singleBase := int64(tokenBOS + 1 + 4096)
	want := []int64{tokenCLS, tokenBOS + 1, singleBase + 1, tokenPad, tokenPad}
	wantMask := []int64{1, 1, 1, 0, 0}
	for i := range want {
		if ids[i] != want[i] || mask[i] != wantMask[i] {
			t.Errorf("pos %d: id=%d mask=%d, want id=%d mask=%d", i, ids[i], mask[i], want[i], wantMask[i])
		}
	}
}

func TestKmerTokenizer_FallbackAndTruncation(t *testing.T) {
	tok := NewKmerTokenizer()

	ids, _ := tok.Tokenize("ANAAAAAX", 16)
	singleBase := int64(tokenBOS + 1 + 4096)
	// "ANAAAA" has an N so A falls back to a single token, then "NAAAAA" also does.
	if ids[1] != singleBase || ids[2] != singleBase+4 {
		t.Errorf("fallback ids = %v", ids[:4])
	}

	long := make([]byte, 600)
	for i := range long {
		long[i] = 'G'
	}
	ids, mask := tok.Tokenize(string(long), 8)
	for i := range ids {
		if mask[i] != 1 || (i > 0 && ids[i] == tokenPad) {
			t.Fatalf("truncated output should be fully unmasked, got ids=%v mask=%v", ids, mask)
		}
	}
}
