package domain

import (
	"errors"
	"reflect"
	"testing"
)

func titles(d PlaylistDraft) []string {
	out := make([]string, 0, len(d.Entries))
	for _, e := range d.Entries {
		out = append(out, e.Title)
	}
	return out
}

func sampleDraft() PlaylistDraft {
	return PlaylistDraft{Entries: []DraftEntry{
		{Artist: "A", Title: "one"},
		{Artist: "B", Title: "two"},
		{Artist: "C", Title: "three"},
		{Artist: "D", Title: "four"},
	}}
}

func TestPlaylistDraft_Move(t *testing.T) {
	tests := []struct {
		name    string
		from    int
		to      int
		want    []string
		wantErr error
	}{
		{name: "forward", from: 0, to: 2, want: []string{"two", "three", "one", "four"}},
		{name: "backward", from: 3, to: 1, want: []string{"one", "four", "two", "three"}},
		{name: "same index", from: 1, to: 1, want: []string{"one", "two", "three", "four"}},
		{name: "out of range", from: 0, to: 4, wantErr: ErrInvalidIndex, want: []string{"one", "two", "three", "four"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := sampleDraft()
			err := d.Move(tc.from, tc.to)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if got := titles(d); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestPlaylistDraft_RemoveReplace(t *testing.T) {
	d := sampleDraft()
	if err := d.Remove(1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := titles(d); !reflect.DeepEqual(got, []string{"one", "three", "four"}) {
		t.Fatalf("unexpected order after remove: %v", got)
	}
	if err := d.Replace(0, DraftEntry{Artist: "Z", Title: "zero"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if d.Entries[0].Title != "zero" {
		t.Fatalf("expected replaced entry, got %+v", d.Entries[0])
	}
	if err := d.Remove(9); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("expected ErrInvalidIndex, got %v", err)
	}
}

func TestPlaylistDraft_Contains(t *testing.T) {
	d := sampleDraft()
	dup := DraftEntry{Artist: " a ", Title: "ONE"}
	if !d.Contains(dup, -1) {
		t.Fatal("expected case-insensitive match")
	}
	if d.Contains(dup, 0) {
		t.Fatal("expected skipped index to be ignored")
	}
}

func TestStageSet(t *testing.T) {
	var ss StageSet
	if !ss.Covers(StageModel) {
		t.Fatal("model has no prerequisites")
	}
	if ss.Covers(StageData) {
		t.Fatal("data requires model")
	}

	ss = ss.With(StageModel).With(StageData).With(StageAnalyzing)
	if ss.Covers(StageGenerating) {
		t.Fatal("generating requires filtering")
	}
	ss = ss.With(StageFiltering)
	if !ss.Covers(StageGenerating) {
		t.Fatal("generating should be reachable once filtering is completed")
	}

	b, err := ss.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `["model","data","analyzing","filtering"]` {
		t.Fatalf("unexpected json %s", b)
	}
}

func TestParseStage(t *testing.T) {
	s, err := ParseStage("Searching")
	if err != nil || s != StageFiltering {
		t.Fatalf("expected filtering alias, got %v %v", s, err)
	}
	if _, err := ParseStage("nope"); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected ErrInvalidArgs, got %v", err)
	}
}

func TestMusicProfile_RestrictTo(t *testing.T) {
	p := MusicProfile{
		PrimaryGenres: []string{"rock", "Shoegaze", "Made Up"},
		Moods:         []string{"Brooding", "brooding"},
		Styles:        []string{"Dream Pop"},
	}
	v := Vocabulary{
		Genres: []string{"Rock", "Shoegaze"},
		Moods:  []string{"Brooding"},
	}

	got := p.RestrictTo(v)
	if !reflect.DeepEqual(got.PrimaryGenres, []string{"Rock", "Shoegaze"}) {
		t.Fatalf("unexpected genres %v", got.PrimaryGenres)
	}
	if !reflect.DeepEqual(got.Moods, []string{"Brooding"}) {
		t.Fatalf("unexpected moods %v", got.Moods)
	}
	if !reflect.DeepEqual(got.Styles, []string{"Dream Pop"}) {
		t.Fatalf("styles without an allow-list should be kept, got %v", got.Styles)
	}
}

func TestUserMessage(t *testing.T) {
	if UserMessage(nil) != "" {
		t.Fatal("nil error should have no message")
	}
	if IsRetryable(ErrRateLimited) {
		t.Fatal("rate limits are retried by the user")
	}
	if !IsRetryable(ErrTransient) {
		t.Fatal("transient errors are retryable")
	}
	msg := UserMessage(errors.Join(errors.New("plex: status 401"), ErrUnauthorized))
	if msg != UserMessage(ErrUnauthorized) {
		t.Fatalf("expected unauthorized message, got %q", msg)
	}
}
