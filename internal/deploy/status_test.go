package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	out := "## feature...origin/feature [ahead 1, behind 3]\n" +
		"M  staged.json\n" +
		" M worktree.json\n" +
		"A  nuevo/index.json\n" +
		" D borrado.json\n" +
		"R  viejo.json -> renombrado.json\n" +
		"UU conflicto.json\n" +
		"?? suelto.png\n"

	st := ParseStatus(out)
	assert.Equal(t, "feature", st.Branch)
	assert.Equal(t, "origin/feature", st.Tracking)
	assert.Equal(t, 1, st.Ahead)
	assert.Equal(t, 3, st.Behind)
	assert.Equal(t, []string{"staged.json", "nuevo/index.json", "renombrado.json"}, st.Staged)
	assert.Equal(t, []string{"staged.json", "worktree.json"}, st.Modified)
	assert.Equal(t, []string{"nuevo/index.json", "suelto.png"}, st.Created)
	assert.Equal(t, []string{"borrado.json"}, st.Deleted)
	assert.Equal(t, []string{"conflicto.json"}, st.Conflicted)
	assert.False(t, st.IsClean)
}

func TestParseStatusClean(t *testing.T) {
	st := ParseStatus("## main\n")
	assert.Equal(t, "main", st.Branch)
	assert.Empty(t, st.Tracking)
	assert.True(t, st.IsClean)
	assert.NotNil(t, st.Staged)

	st = ParseStatus("## No commits yet on main\n")
	assert.Equal(t, "main", st.Branch)
	assert.True(t, st.IsClean)
}
