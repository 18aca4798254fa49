package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/kazz187/taskdesk/internal/config"
	"github.com/kazz187/taskdesk/internal/engine"
	"github.com/kazz187/taskdesk/internal/eventbus"
	"github.com/kazz187/taskdesk/internal/task"
)

var (
	cli     = kingpin.New("taskdesk", "Local-first task desk for the operations console")
	syncFor = cli.Flag("sync-wait", "How long to wait for background sync before exiting").Default("30s").Duration()
	asJSON  = cli.Flag("json", "Print JSON instead of text").Bool()

	addCmd      = cli.Command("add", "Create a task")
	addTitle    = addCmd.Arg("title", "Task title").String()
	addDesc     = addCmd.Flag("desc", "Description").String()
	addDue      = addCmd.Flag("due", "Due date (YYYY-MM-DD or RFC 3339)").String()
	addPriority = addCmd.Flag("priority", "Priority").Enum("high", "medium", "low")
	addClient   = addCmd.Flag("client", "Client name").String()
	addFolder   = addCmd.Flag("folder", "Client folder path").String()
	addOwner    = addCmd.Flag("owner", "Owner id").String()
	addDone     = addCmd.Flag("done", "Create the task already done").Bool()

	subCmd      = cli.Command("sub", "Create a subtask")
	subParent   = subCmd.Arg("parent", "Parent task id").Required().String()
	subTitle    = subCmd.Arg("title", "Subtask title").String()
	subDue      = subCmd.Flag("due", "Due date (YYYY-MM-DD or RFC 3339)").String()
	subPriority = subCmd.Flag("priority", "Priority").Enum("high", "medium", "low")
	subOwner    = subCmd.Flag("owner", "Owner id").String()

	updateCmd      = cli.Command("update", "Change fields of a task")
	updateID       = updateCmd.Arg("id", "Task id").Required().String()
	updateTitle    = updateCmd.Flag("title", "Title").IsSetByUser(&updateSet.title).String()
	updateDesc     = updateCmd.Flag("desc", "Description").IsSetByUser(&updateSet.desc).String()
	updateDue      = updateCmd.Flag("due", "Due date (YYYY-MM-DD or RFC 3339)").IsSetByUser(&updateSet.due).String()
	updateClearDue = updateCmd.Flag("clear-due", "Remove the due date").Bool()
	updatePriority = updateCmd.Flag("priority", "Priority").IsSetByUser(&updateSet.priority).Enum("high", "medium", "low")
	updateClient   = updateCmd.Flag("client", "Client name").IsSetByUser(&updateSet.client).String()
	updateFolder   = updateCmd.Flag("folder", "Client folder path").IsSetByUser(&updateSet.folder).String()
	updateOwner    = updateCmd.Flag("owner", "Owner id").IsSetByUser(&updateSet.owner).String()
	updateParent   = updateCmd.Flag("parent", "Parent task id").IsSetByUser(&updateSet.parent).String()

	doneCmd    = cli.Command("done", "Mark a task done")
	doneID     = doneCmd.Arg("id", "Task id").Required().String()
	reopenCmd  = cli.Command("reopen", "Mark a task not done")
	reopenID   = reopenCmd.Arg("id", "Task id").Required().String()
	restoreCmd = cli.Command("restore", "Move an archived task back to the active list")
	restoreID  = restoreCmd.Arg("id", "Task id").Required().String()

	attachCmd     = cli.Command("attach", "Attach a link, file, folder or message to a task")
	attachID      = attachCmd.Arg("id", "Task id").Required().String()
	attachType    = attachCmd.Flag("type", "Attachment type").Default("link").Enum("link", "file", "folder", "email")
	attachLabel   = attachCmd.Flag("label", "Label").Required().String()
	attachURL     = attachCmd.Flag("url", "URL").String()
	attachPath    = attachCmd.Flag("path", "File path").String()
	attachMessage = attachCmd.Flag("message-id", "Email message id").String()

	commentCmd        = cli.Command("comment", "Task comments")
	commentListCmd    = commentCmd.Command("list", "Show the comments of a task")
	commentListID     = commentListCmd.Arg("id", "Task id").Required().String()
	commentAddCmd     = commentCmd.Command("add", "Add a comment")
	commentAddID      = commentAddCmd.Arg("id", "Task id").Required().String()
	commentAddText    = commentAddCmd.Arg("text", "Comment text").Required().String()
	commentAuthor     = commentCmd.Flag("author", "Comment author").Default("Me").String()
	commentReplyCmd   = commentCmd.Command("reply", "Reply to a comment")
	commentReplyID    = commentReplyCmd.Arg("id", "Task id").Required().String()
	commentReplyTo    = commentReplyCmd.Arg("comment", "Comment id").Required().String()
	commentReplyText  = commentReplyCmd.Arg("text", "Reply text").Required().String()
	commentLikeCmd    = commentCmd.Command("like", "Toggle the like on a comment")
	commentLikeID     = commentLikeCmd.Arg("id", "Task id").Required().String()
	commentLikeTo     = commentLikeCmd.Arg("comment", "Comment id").Required().String()
	commentResolveCmd = commentCmd.Command("resolve", "Resolve a comment")
	commentResolveID  = commentResolveCmd.Arg("id", "Task id").Required().String()
	commentResolveTo  = commentResolveCmd.Arg("comment", "Comment id").Required().String()
	commentReopen     = commentResolveCmd.Flag("reopen", "Mark the comment unresolved").Bool()

	lsCmd       = cli.Command("ls", "List active tasks")
	lsClient    = lsCmd.Flag("client", "Only tasks of this client").String()
	lsOwner     = lsCmd.Flag("owner", `Owner id, "me", "all" or "delegated"`).Default(task.OwnerAll).String()
	lsDelegated = lsCmd.Flag("delegated", "Only tasks owned by someone else").Bool()
	lsDays      = lsCmd.Flag("days", "Only tasks updated within this many days").Int()
	lsTree      = lsCmd.Flag("tree", "Indent subtasks under their parent").Bool()

	topCmd = cli.Command("top", "Show the most urgent open tasks")
	topN   = topCmd.Flag("n", "Number of tasks").Default("5").Int()

	groupCmd = cli.Command("group", "List active tasks grouped by owner")

	summaryCmd = cli.Command("summary", "Overdue, today and upcoming counts")

	sweepCmd    = cli.Command("sweep", "Archive tasks done for longer than the archive window")
	archivedCmd = cli.Command("archived", "List archived tasks")

	fetchCmd         = cli.Command("fetch", "Read tasks from the remote service")
	fetchIncludeDone = fetchCmd.Flag("include-done", "Include done tasks").Bool()
	fetchClient      = fetchCmd.Flag("client", "Client name").String()
	fetchOwner       = fetchCmd.Flag("owner", "Owner id").String()
	fetchStatus      = fetchCmd.Flag("status", "Status").Enum("new", "done")
	fetchForce       = fetchCmd.Flag("force", "Skip the cache").Bool()

	syncCmd   = cli.Command("sync", "Run the one-time migration and wait for queued sync jobs")
	diffCmd   = cli.Command("diff", "Compare local tasks with the remote service")
	statusCmd = cli.Command("status", "Show sync and cache status")
	watchCmd  = cli.Command("watch", "Keep the engine running and print sync events")

	watchJournal = watchCmd.Flag("journal", "Also append events to daily NDJSON files in this directory").String()
)

// updateSet records which update flags were given, so that an empty value
// clears the field instead of being ignored.
var updateSet struct {
	title, desc, due, priority, client, folder, owner, parent bool
}

func main() {
	cli.HelpFlag.Short('h')
	command := kingpin.MustParse(cli.Parse(os.Args[1:]))

	env, err := config.LoadClientEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	setupLogger(env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	a.start(ctx)

	err = a.run(ctx, command)
	a.stop(*syncFor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, command string) error {
	out := color.Output
	e := a.engine
	now := time.Now()

	switch command {
	case lsCmd.FullCommand(), topCmd.FullCommand(), groupCmd.FullCommand(), summaryCmd.FullCommand():
		e.ArchiveSweep(ctx)
	}

	switch command {
	case addCmd.FullCommand():
		in, err := input(*addTitle, *addDue, *addPriority, *addOwner)
		if err != nil {
			return err
		}
		in.Desc, in.ClientName, in.ClientFolderPath = *addDesc, *addClient, *addFolder
		if *addDone {
			in.Status = task.StatusDone
		}
		return a.printTask(e.CreateTask(ctx, in))

	case subCmd.FullCommand():
		in, err := input(*subTitle, *subDue, *subPriority, *subOwner)
		if err != nil {
			return err
		}
		if _, ok := e.GetTask(ctx, *subParent); !ok {
			slog.WarnContext(ctx, "parent task not found locally", "parent_id", *subParent)
		}
		return a.printTask(e.AddSubtask(ctx, *subParent, in))

	case updateCmd.FullCommand():
		p, err := updatePatch()
		if err != nil {
			return err
		}
		if p.IsEmpty() {
			return fmt.Errorf("nothing to update")
		}
		t, ok := e.UpdateTask(ctx, *updateID, p)
		return a.printFound(*updateID, t, ok)

	case doneCmd.FullCommand():
		t, ok := e.MarkDone(ctx, *doneID)
		return a.printFound(*doneID, t, ok)
	case reopenCmd.FullCommand():
		t, ok := e.SetDone(ctx, *reopenID, false)
		return a.printFound(*reopenID, t, ok)
	case restoreCmd.FullCommand():
		t, ok := e.RestoreTask(ctx, *restoreID)
		return a.printFound(*restoreID, t, ok)

	case attachCmd.FullCommand():
		att, ok := e.Attach(ctx, *attachID, task.Attachment{
			Type:      *attachType,
			Label:     *attachLabel,
			URL:       *attachURL,
			Path:      *attachPath,
			MessageID: *attachMessage,
		})
		if !ok {
			return notFound(*attachID)
		}
		return a.emit(att, func() { fmt.Fprintf(out, "attached %s\n", bold(att.Label)) })

	case commentListCmd.FullCommand():
		t, ok := e.GetTask(ctx, *commentListID)
		if !ok {
			return notFound(*commentListID)
		}
		return a.emit(t.Comments, func() { printComments(out, t.Comments) })
	case commentAddCmd.FullCommand():
		c, ok := e.AddComment(ctx, *commentAddID, *commentAuthor, *commentAddText)
		if !ok {
			return notFound(*commentAddID)
		}
		return a.emit(c, func() { printComment(out, c, "") })
	case commentReplyCmd.FullCommand():
		c, ok := e.ReplyToComment(ctx, *commentReplyID, *commentReplyTo, *commentAuthor, *commentReplyText)
		if !ok {
			return fmt.Errorf("comment %s not found on task %s", *commentReplyTo, *commentReplyID)
		}
		return a.emit(c, func() { printComment(out, c, "    ") })
	case commentLikeCmd.FullCommand():
		t, ok := e.ToggleLike(ctx, *commentLikeID, *commentLikeTo)
		if !ok {
			return fmt.Errorf("comment %s not found on task %s", *commentLikeTo, *commentLikeID)
		}
		return a.emit(t.Comments, func() { printComments(out, t.Comments) })
	case commentResolveCmd.FullCommand():
		t, ok := e.ResolveComment(ctx, *commentResolveID, *commentResolveTo, !*commentReopen)
		if !ok {
			return fmt.Errorf("comment %s not found on task %s", *commentResolveTo, *commentResolveID)
		}
		return a.emit(t.Comments, func() { printComments(out, t.Comments) })

	case lsCmd.FullCommand():
		tasks := e.ListTasks(ctx, task.ListOptions{
			Client:         *lsClient,
			Owner:          *lsOwner,
			DelegatedOnly:  *lsDelegated,
			TimeWindowDays: *lsDays,
			MeEmail:        a.owners.MeEmail,
			Owners:         a.owners.Owners,
		})
		return a.emit(tasks, func() { printTasks(out, tasks, a.owners, now, *lsTree) })

	case topCmd.FullCommand():
		var open []task.Task
		for _, t := range e.AllTasks(ctx) {
			if !t.IsDone() {
				open = append(open, t)
			}
		}
		tasks := task.TopN(open, *topN)
		return a.emit(tasks, func() { printTasks(out, tasks, a.owners, now, false) })

	case groupCmd.FullCommand():
		groups := task.GroupByOwner(e.ListTasks(ctx, task.ListOptions{Owner: task.OwnerAll}))
		return a.emit(groups, func() { printGroups(out, groups, a.owners, now) })

	case summaryCmd.FullCommand():
		res := e.FetchSummary(ctx)
		warnSource(res.Source, res.Err)
		return a.emit(res.Value, func() { printSummary(out, res.Value, a.owners, now) })

	case sweepCmd.FullCommand():
		n := e.ArchiveSweep(ctx)
		return a.emit(map[string]int{"archived": n}, func() { fmt.Fprintf(out, "archived %d task(s)\n", n) })

	case archivedCmd.FullCommand():
		tasks := e.ArchivedTasks(ctx)
		return a.emit(tasks, func() { printTasks(out, tasks, a.owners, now, false) })

	case fetchCmd.FullCommand():
		res := e.FetchTasks(ctx, engine.Filters{
			IncludeDone: *fetchIncludeDone,
			Client:      *fetchClient,
			Owner:       *fetchOwner,
			Status:      *fetchStatus,
			Force:       *fetchForce,
		})
		warnSource(res.Source, res.Err)
		return a.emit(res.Value, func() { printTasks(out, res.Value, a.owners, now, false) })

	case syncCmd.FullCommand():
		if err := e.EnsureMigrated(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		waitCtx, cancel := context.WithTimeout(ctx, *syncFor)
		defer cancel()
		if err := e.Drain(waitCtx); err != nil {
			return fmt.Errorf("sync did not finish: %w", err)
		}
		return a.printStatus(ctx)

	case diffCmd.FullCommand():
		res := e.FetchTasks(ctx, engine.Filters{IncludeDone: true})
		if res.Err != nil {
			return fmt.Errorf("remote unavailable: %w", res.Err)
		}
		diff, err := diffTasks(e.AllTasks(ctx), res.Value)
		if err != nil {
			return err
		}
		if diff == "" {
			fmt.Fprintln(out, green("local and remote agree"))
			return nil
		}
		fmt.Fprint(out, colorDiff(diff))
		return nil

	case statusCmd.FullCommand():
		return a.printStatus(ctx)

	case watchCmd.FullCommand():
		return a.watch(ctx, *watchJournal)
	}
	return fmt.Errorf("unknown command %q", command)
}

func input(title, due, priority, owner string) (task.Input, error) {
	in := task.Input{
		Title:    title,
		Priority: task.ParsePriority(priority),
		OwnerID:  owner,
	}
	if due != "" {
		at, err := parseDue(due)
		if err != nil {
			return task.Input{}, err
		}
		in.DueAt = &at
	}
	return in, nil
}

func updatePatch() (task.Patch, error) {
	var p task.Patch
	if updateSet.title {
		p.Title = updateTitle
	}
	if updateSet.desc {
		p.Desc = updateDesc
	}
	if updateSet.due {
		at, err := parseDue(*updateDue)
		if err != nil {
			return task.Patch{}, err
		}
		p.DueAt = &at
	}
	p.ClearDueAt = *updateClearDue
	if updateSet.priority {
		pr := task.ParsePriority(*updatePriority)
		p.Priority = &pr
	}
	if updateSet.client {
		p.ClientName = updateClient
	}
	if updateSet.folder {
		p.ClientFolderPath = updateFolder
	}
	if updateSet.owner {
		p.OwnerID = updateOwner
	}
	if updateSet.parent {
		p.ParentID = updateParent
	}
	return p, nil
}

func notFound(id string) error {
	return fmt.Errorf("task %s not found", id)
}

func warnSource(src engine.Source, err error) {
	if src == engine.SourceLocal {
		fmt.Fprintln(os.Stderr, yellow(fmt.Sprintf("remote unavailable, showing local data: %v", err)))
	}
}

func (a *app) emit(v any, text func()) error {
	if *asJSON {
		return printJSON(color.Output, v)
	}
	text()
	return nil
}

func (a *app) printTask(t task.Task) error {
	return a.emit(t, func() { fmt.Fprintln(color.Output, formatTask(t, a.owners, time.Now())) })
}

func (a *app) printFound(id string, t task.Task, ok bool) error {
	if !ok {
		return notFound(id)
	}
	return a.printTask(t)
}

func (a *app) printStatus(ctx context.Context) error {
	st := a.engine.Status(ctx)
	if *asJSON {
		return printJSON(color.Output, st)
	}
	fmt.Fprintf(color.Output, "pending %d  succeeded %d  failed %d  retries %d\n",
		st.Sync.Pending, st.Sync.Succeeded, st.Sync.Failed, st.Sync.Retries)
	if st.Sync.LastError != "" {
		fmt.Fprintf(color.Output, "last error %s: %s\n", st.Sync.LastErrorAt.Format(time.RFC3339), red(st.Sync.LastError))
	}
	fmt.Fprintf(color.Output, "cached %d  migrated %t\n", st.CachedTasks, st.Migrated)
	return nil
}

func (a *app) watch(ctx context.Context, journalDir string) error {
	if journalDir != "" {
		j, err := eventbus.NewJournal(journalDir)
		if err != nil {
			return err
		}
		a.wg.Go(func() { j.Run(ctx, a.engine.Bus()) })
	}
	w := a.watchStore(ctx)
	select {
	case <-w.Ready():
	case <-ctx.Done():
		return nil
	}
	bus := a.engine.Bus()
	subID, events := bus.Subscribe(64)
	defer bus.Unsubscribe(subID)
	fmt.Fprintln(color.Output, faint("watching, press Ctrl-C to stop"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if *asJSON {
				data, err := json.Marshal(ev)
				if err != nil {
					return err
				}
				fmt.Fprintln(color.Output, string(data))
				continue
			}
			fmt.Fprintf(color.Output, "%s %s %s %s\n", faint(ev.CreatedAt.Format(time.TimeOnly)), cyan(string(ev.Type)), ev.ResourceID, ev.Payload)
		}
	}
}
