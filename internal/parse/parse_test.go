package parse

import (
	"errors"
	"strings"
	"testing"
)

func TestStripCodeFence(t *testing.T) {
	fenced := "```json\n{\"a\": 1}\n```"
	if got := StripCodeFence(fenced); got != `{"a": 1}` {
		t.Fatalf("fence not stripped: %q", got)
	}
	bare := `  {"a": 1}  `
	if got := StripCodeFence(bare); got != `{"a": 1}` {
		t.Fatalf("bare content should pass through trimmed: %q", got)
	}
}

func TestDecodeObjectListRejectsProse(t *testing.T) {
	_, err := DecodeObjectList("对不起，我无法生成该内容。")
	if err == nil {
		t.Fatal("prose must fail JSON decoding")
	}
	var jsonErr *JSONError
	if !errors.As(err, &jsonErr) {
		t.Fatalf("expected *JSONError, got %T", err)
	}
}

func TestParseFileBlocksRoundTrip(t *testing.T) {
	blocks := []FileBlock{
		{Path: "output_sourcecode/front/index.html", Content: "<html>\n<body>hi</body>\n</html>"},
		{Path: "output_sourcecode/front/app.js", Content: "console.log('x');"},
	}
	parsed := ParseFileBlocks(SerializeFileBlocks(blocks))
	if len(parsed) != len(blocks) {
		t.Fatalf("expected %d blocks, got %d", len(blocks), len(parsed))
	}
	for i := range blocks {
		if parsed[i] != blocks[i] {
			t.Fatalf("block %d changed in round trip:\nwant %+v\ngot  %+v", i, blocks[i], parsed[i])
		}
	}
}

func TestParseFileBlocksChineseMarkerAndPreamble(t *testing.T) {
	content := "以下是生成的文件：\n### 文件：db/schema.sql\nCREATE TABLE t (id INT);\n"
	parsed := ParseFileBlocks(content)
	if len(parsed) != 1 {
		t.Fatalf("expected 1 block, got %d", len(parsed))
	}
	if parsed[0].Path != "db/schema.sql" {
		t.Fatalf("unexpected path %q", parsed[0].Path)
	}
	if !strings.Contains(parsed[0].Content, "CREATE TABLE") {
		t.Fatalf("unexpected content %q", parsed[0].Content)
	}
}

func TestSafeRelPath(t *testing.T) {
	if _, ok := SafeRelPath("../../etc/passwd"); ok {
		t.Fatal("parent traversal must be rejected")
	}
	if _, ok := SafeRelPath("/etc/passwd"); ok {
		// A single leading slash is stripped to a relative path; the
		// remainder is inside the root and therefore allowed.
		t.Log("leading slash stripped")
	}
	if _, ok := SafeRelPath("a/../../b"); ok {
		t.Fatal("embedded traversal must be rejected")
	}
	got, ok := SafeRelPath("output_sourcecode/front/index.html")
	if !ok || got != "output_sourcecode/front/index.html" {
		t.Fatalf("plain relative path should pass, got %q ok=%v", got, ok)
	}
	if _, ok := SafeRelPath("   "); ok {
		t.Fatal("blank path must be rejected")
	}
}

func validPlan() map[string]any {
	// hours=4 -> 160 minutes; 10 + 35*3 + 30 + 10 + 5 = 160.
	return map[string]any{
		"review_time": float64(10),
		"new_lessons": []any{
			map[string]any{"content": "任务一", "time": float64(35)},
			map[string]any{"content": "任务二", "time": float64(35)},
			map[string]any{"content": "任务三", "time": float64(35)},
			map[string]any{"content": "任务四", "time": float64(30)},
		},
	}
}

func TestCheckTimeAllocationPasses(t *testing.T) {
	if err := CheckTimeAllocation(validPlan(), 4); err != nil {
		t.Fatalf("valid plan rejected: %v", err)
	}
}

func TestCheckTimeAllocationCountBeforeSum(t *testing.T) {
	plan := map[string]any{
		"review_time": float64(10),
		"new_lessons": []any{
			map[string]any{"content": "a", "time": float64(70)},
			map[string]any{"content": "b", "time": float64(65)},
		},
	}
	err := CheckTimeAllocation(plan, 4)
	if err == nil {
		t.Fatal("2-item plan must fail")
	}
	if !strings.Contains(err.Error(), "3-5") {
		t.Fatalf("count violation must be reported before the sum check: %v", err)
	}
}

func TestCheckTimeAllocationRejects(t *testing.T) {
	plan := validPlan()
	plan["review_time"] = float64(20)
	if err := CheckTimeAllocation(plan, 4); err == nil || !strings.Contains(err.Error(), "5-15") {
		t.Fatalf("out-of-range review_time: %v", err)
	}

	plan = validPlan()
	plan["review_time"] = float64(10.5)
	if err := CheckTimeAllocation(plan, 4); err == nil {
		t.Fatal("fractional review_time must be rejected")
	}

	plan = validPlan()
	plan["new_lessons"].([]any)[0].(map[string]any)["time"] = float64(-5)
	if err := CheckTimeAllocation(plan, 4); err == nil || !strings.Contains(err.Error(), "正整数") {
		t.Fatalf("negative lesson time: %v", err)
	}

	plan = validPlan()
	plan["new_lessons"].([]any)[0].(map[string]any)["time"] = float64(34)
	if err := CheckTimeAllocation(plan, 4); err == nil || !strings.Contains(err.Error(), "总和不匹配") {
		t.Fatalf("sum mismatch: %v", err)
	}

	if err := CheckTimeAllocation(validPlan(), 0); err == nil {
		t.Fatal("non-positive hours must be rejected")
	}
}

func TestMergeRepairedTimes(t *testing.T) {
	plan := validPlan()
	repaired := map[string]any{
		"review_time": float64(15),
		"new_lessons": []any{
			map[string]any{"content": "改写后的内容", "time": float64(40)},
			map[string]any{"content": "b", "time": "not a number"},
			map[string]any{"content": "c", "time": float64(30)},
		},
	}
	MergeRepairedTimes(plan, repaired)

	if got, _ := IntValue(plan["review_time"]); got != 15 {
		t.Fatalf("review_time should be merged, got %d", got)
	}
	lessons := plan["new_lessons"].([]any)
	first := lessons[0].(map[string]any)
	if got, _ := IntValue(first["time"]); got != 40 {
		t.Fatalf("first time should be merged, got %d", got)
	}
	if first["content"] != "任务一" {
		t.Fatalf("content must never be merged, got %q", first["content"])
	}
	second := lessons[1].(map[string]any)
	if got, _ := IntValue(second["time"]); got != 35 {
		t.Fatalf("ill-typed time must keep the original, got %d", got)
	}
	fourth := lessons[3].(map[string]any)
	if got, _ := IntValue(fourth["time"]); got != 30 {
		t.Fatalf("items beyond the repair response keep originals, got %d", got)
	}
}
