package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PageItem is one entry of the extracted page plan, consumed by the frontend
// generation stage and the fallback renderer.
type PageItem struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	File        string `json:"file"`
	Description string `json:"description"`
}

// DefaultPages is the page set used when page-plan extraction fails; the
// archive must still contain a plausible frontend.
func DefaultPages() []PageItem {
	return []PageItem{
		{Name: "仪表盘", Path: "/dashboard", File: "dashboard.html", Description: "系统总览与关键指标展示。"},
		{Name: "项目管理", Path: "/projects", File: "projects.html", Description: "软著项目的创建、编辑与查看。"},
		{Name: "生成中心", Path: "/generate", File: "generate.html", Description: "一键生成软著材料与进度管理。"},
		{Name: "系统设置", Path: "/settings", File: "settings.html", Description: "系统配置与用户权限管理。"},
		{Name: "帮助中心", Path: "/help", File: "help.html", Description: "使用说明与常见问题。"},
	}
}

const fallbackCSS = `
body { font-family: "Noto Sans SC", sans-serif; margin: 0; background: #f5f7fb; color: #1f2a44; }
.layout { display: flex; min-height: 100vh; }
.sidebar { width: 240px; background: #1f2937; color: #fff; padding: 24px; }
.content { flex: 1; padding: 32px; }
.card { background: #fff; border-radius: 12px; padding: 24px; box-shadow: 0 8px 24px rgba(15, 23, 42, 0.08); }
`

// WriteFallbackFrontend renders one static HTML page per page item, used when
// the model returned no usable HTML files.
func (m *Manager) WriteFallbackFrontend(projectDir, systemName string, pages []PageItem) error {
	for _, page := range pages {
		filename := page.File
		if filename == "" {
			filename = "index.html"
		}
		title := page.Name
		if title == "" {
			title = "页面"
		}
		description := page.Description
		if description == "" {
			description = "页面功能描述待补充。"
		}
		html := fmt.Sprintf(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1.0" />
  <title>%s - %s</title>
  <link href="https://fonts.googleapis.com/css2?family=Noto+Sans+SC:wght@300;400;500;700&display=swap" rel="stylesheet">
  <style>%s</style>
</head>
<body>
  <div class="layout">
    <aside class="sidebar">
      <h1>%s</h1>
      <nav>
        <div>导航菜单</div>
        <div>%s</div>
      </nav>
    </aside>
    <main class="content">
      <div class="card">
        <h2>%s</h2>
        <p>%s</p>
        <div>
          <div>AI功能入口</div>
          <div>业务数据概览</div>
        </div>
      </div>
    </main>
  </div>
</body>
</html>
`, title, systemName, fallbackCSS, systemName, title, title, description)

		target := filepath.Join(projectDir, "output_sourcecode", "front", filename)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create fallback frontend dir: %w", err)
		}
		if err := os.WriteFile(target, []byte(html), 0o644); err != nil {
			return fmt.Errorf("write fallback page %s: %w", filename, err)
		}
	}
	return nil
}

// WriteFallbackBackend writes a minimal backend sample so the archive always
// carries server source.
func (m *Manager) WriteFallbackBackend(projectDir, systemName string) error {
	content := fmt.Sprintf(`"""
%s 后端示例代码
"""
from fastapi import FastAPI

app = FastAPI(title="%s")


@app.get("/health")
def health_check():
    return {"status": "ok"}


@app.get("/modules")
def list_modules():
    return {"modules": ["用户管理", "AI生成", "文档管理"]}
`, systemName, systemName)
	target := filepath.Join(projectDir, "output_sourcecode", "backend", "app.py")
	return os.WriteFile(target, []byte(content), 0o644)
}

// WriteFallbackDatabase writes a minimal schema script.
func (m *Manager) WriteFallbackDatabase(projectDir, systemName string) error {
	content := fmt.Sprintf(`/*
* 数据库表结构定义脚本
* 项目：%s
* 创建日期：%s
*/

CREATE TABLE sys_users (
  id BIGSERIAL PRIMARY KEY,
  username VARCHAR(50) NOT NULL UNIQUE,
  password_hash VARCHAR(255) NOT NULL,
  created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE ai_generation_jobs (
  id BIGSERIAL PRIMARY KEY,
  job_type VARCHAR(50) NOT NULL,
  status VARCHAR(20) NOT NULL,
  payload TEXT,
  created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`, systemName, time.Now().Format("2006-01-02"))
	target := filepath.Join(projectDir, "output_sourcecode", "db", "database_schema.sql")
	return os.WriteFile(target, []byte(content), 0o644)
}
