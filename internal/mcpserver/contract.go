package mcpserver

// PathContract describes how dirstore paths work so LLM consumers build
// valid keys before calling the tools.
const PathContract = `# dirstore Path Contract

dirstore stores files as a flat set of keys. Directories exist only as
marker entries; there is no tree index.

## Rules

1. **Every path starts with "/".** A missing leading slash is added for you.
2. **Directories end with "/", files do not.** ` + "`" + `/docs/` + "`" + ` is a directory,
   ` + "`" + `/docs/readme.md` + "`" + ` is a file. Tools that take a directory add the trailing
   slash when it is missing.
3. **Uploading creates parents.** ` + "`" + `write_file` + "`" + ` on ` + "`" + `/a/b/c.txt` + "`" + ` creates ` + "`" + `/a/` + "`" + ` and
   ` + "`" + `/a/b/` + "`" + ` first.
4. **Listing is one level deep.** ` + "`" + `list_files` + "`" + ` returns only direct children.
5. **Removing a non-empty directory needs recursive=true.**
6. **Moves are not atomic.** If ` + "`" + `move_dir` + "`" + ` fails midway, some entries are at the new
   prefix and the rest at the old one. List both and move the remainder.
7. **Versions are kept.** Replacing a file deletes only the version that was
   current; use ` + "`" + `prune_file` + "`" + ` to drop older leftovers.
8. **Your files are private.** Every tool works inside the partition of the
   logged-in user only.

## Fetching remote content

- ` + "`" + `fetch_file` + "`" + ` stores the body of an http(s) URL or a base64 ` + "`" + `data:` + "`" + ` URI
  under a directory. Loopback and cloud metadata hosts are refused.
- The stored name comes from the ` + "`" + `filename` + "`" + ` argument, else the URL, else a UUID.
`
