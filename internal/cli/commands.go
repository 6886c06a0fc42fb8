package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mmynk/mealsync/internal/middleware"
	"github.com/mmynk/mealsync/internal/models"
	"github.com/mmynk/mealsync/internal/namespace"
	"github.com/mmynk/mealsync/internal/storage"
)

func (a *App) commandTable() map[string]command {
	return map[string]command{
		"help": {usage: "help", help: "list commands", run: a.help},

		// identity
		"signup":  {usage: "signup <email> <password> [display name]", help: "create an account", run: a.signUp},
		"confirm": {usage: "confirm <email> <code>", help: "confirm a new account", run: a.confirm},
		"signin":  {usage: "signin <email> <password>", help: "sign in", run: a.signIn},
		"demo":    {usage: "demo", help: "start a demo session kept only in memory", run: a.demo},
		"signout": {usage: "signout", help: "sign out", run: a.signOut},
		"whoami":  {usage: "whoami", help: "show the current identity", run: a.whoami},
		"forgot":  {usage: "forgot <email>", help: "start a password reset", run: a.forgot},
		"reset":   {usage: "reset <email> <code> <new password>", help: "finish a password reset", run: a.reset},
		"migrate": {usage: "migrate", help: "copy legacy shared data into your namespace", identity: true, run: a.migrate},

		// expenses
		"expense add":      {usage: "expense add [-date YYYY-MM-DD] <amount> <category> [description]", help: "add an expense", identity: true, run: a.expenseAdd},
		"expense list":     {usage: "expense list", help: "list expenses", run: a.expenseList},
		"expense get":      {usage: "expense get <id>", help: "show one expense", run: a.expenseGet},
		"expense update":   {usage: "expense update <id> [-amount N] [-category C] [-description D] [-date D]", help: "change an expense", identity: true, run: a.expenseUpdate},
		"expense rm":       {usage: "expense rm <id>", help: "delete an expense", identity: true, run: a.expenseDelete},
		"expense rm-batch": {usage: "expense rm-batch <id>...", help: "delete several expenses", identity: true, run: a.expenseDeleteBatch},
		"expense search":   {usage: `expense search <expression>, e.g. amount > 100 && category == "food"`, help: "filter expenses", run: a.expenseSearch},
		"expense refresh":  {usage: "expense refresh", help: "re-read expenses from storage", run: a.expenseRefresh},
		"summary":          {usage: "summary", help: "show spending totals", run: a.summary},

		// notifications
		"notif list":     {usage: "notif list", help: "list notifications", identity: true, run: a.notifList},
		"notif add":      {usage: "notif add [-category C] <title> [message]", help: "add a notification", identity: true, run: a.notifAdd},
		"notif read":     {usage: "notif read <id>", help: "mark a notification read", identity: true, run: a.notifRead},
		"notif read-all": {usage: "notif read-all", help: "mark every notification read", identity: true, run: a.notifReadAll},
		"notif rm":       {usage: "notif rm <id>", help: "delete a notification", identity: true, run: a.notifDelete},
		"notif rm-read":  {usage: "notif rm-read", help: "delete read notifications", identity: true, run: a.notifDeleteRead},

		// profile
		"profile show":  {usage: "profile show", help: "show your profile", identity: true, run: a.profileShow},
		"profile set":   {usage: "profile set [-name N] [-phone P] [-bio B] [-location L] [-website W] [-occupation O] [-education E] [-interests a,b] [-link platform=url]...", help: "edit your profile", identity: true, run: a.profileSet},
		"profile image": {usage: "profile image avatar|cover <data-uri>|rm", help: "set or remove the avatar or cover image", identity: true, run: a.profileImage},
		"profile clear": {usage: "profile clear", help: "delete your profile, images and notifications", identity: true, run: a.profileClear},

		// settings
		"settings show":  {usage: "settings show", help: "show settings", run: a.settingsShow},
		"settings set":   {usage: "settings set <name> <value>", help: "change a setting", run: a.settingsSet},
		"settings reset": {usage: "settings reset", help: "restore default settings", run: a.settingsReset},

		// diagnostics
		"watch":   {usage: "watch", help: "print changes to your expenses and notifications as they happen", identity: true, run: a.watch},
		"unwatch": {usage: "unwatch", help: "stop watching", run: func(context.Context, []string) error { a.unwatch(); return nil }},
		"keys":    {usage: "keys [prefix]", help: "list stored keys", run: a.keys},
		"stats":   {usage: "stats", help: "show storage metrics", run: a.stats},
	}
}

func (a *App) help(_ context.Context, _ []string) error {
	w := a.table()
	for _, name := range a.names() {
		fmt.Fprintf(w, "  %s\t%s\n", name, a.commands[name].help)
	}
	return w.Flush()
}

// table returns a tabwriter over the output. Callers must Flush.
func (a *App) table() *tabwriter.Writer {
	return tabwriter.NewWriter(lockedWriter{a}, 0, 4, 2, ' ', 0)
}

type lockedWriter struct{ a *App }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.a.outMu.Lock()
	defer w.a.outMu.Unlock()
	return w.a.out.Write(p)
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// identity

func (a *App) signUp(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return ErrUsage
	}
	user, code, err := a.identity.SignUp(ctx, args[0], strings.Join(args[2:], " "), args[1])
	if err != nil {
		return err
	}
	a.printf("account %s created, confirmation code: %s\n", user.Email, code)
	return nil
}

func (a *App) confirm(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return ErrUsage
	}
	if err := a.identity.ConfirmSignUp(ctx, args[0], args[1]); err != nil {
		return err
	}
	a.printf("account confirmed, you can sign in now\n")
	return nil
}

func (a *App) signIn(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return ErrUsage
	}
	ident, err := a.identity.SignIn(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	a.unwatch()
	a.printf("signed in as %s\n", ident.Email)
	return nil
}

func (a *App) demo(ctx context.Context, _ []string) error {
	a.unwatch()
	ident := a.identity.SignInEphemeral(ctx)
	a.printf("demo session %s started, nothing will be saved\n", ident.ID)
	return nil
}

func (a *App) signOut(ctx context.Context, _ []string) error {
	a.unwatch()
	a.identity.SignOut(ctx)
	a.printf("signed out\n")
	return nil
}

func (a *App) whoami(ctx context.Context, _ []string) error {
	ident := middleware.GetIdentity(ctx)
	switch {
	case ident.IsZero():
		a.printf("not signed in\n")
	case ident.Ephemeral:
		a.printf("%s (demo session %s)\n", ident.Email, ident.ID)
	default:
		a.printf("%s (%s)\n", ident.Email, ident.ID)
	}
	return nil
}

func (a *App) forgot(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	code, err := a.identity.ForgotPassword(ctx, args[0])
	if err != nil {
		return err
	}
	a.printf("reset code: %s\n", code)
	return nil
}

func (a *App) reset(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return ErrUsage
	}
	if err := a.identity.ConfirmForgotPassword(ctx, args[0], args[1], args[2]); err != nil {
		return err
	}
	a.printf("password changed\n")
	return nil
}

func (a *App) migrate(ctx context.Context, _ []string) error {
	res, err := a.migrator.Migrate(ctx, middleware.GetIdentity(ctx))
	if err != nil {
		return err
	}
	a.printf("expenses: %t, notifications: %t, profile: %t\n", res.Expenses, res.Notifications, res.Profile)
	return nil
}

// expenses

func (a *App) expenseAdd(ctx context.Context, args []string) error {
	fs := newFlags("expense add")
	date := fs.String("date", "", "day or ISO 8601 time")
	if err := fs.Parse(args); err != nil || fs.NArg() < 2 {
		return ErrUsage
	}
	amount, err := strconv.ParseFloat(fs.Arg(0), 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", fs.Arg(0))
	}

	e, err := a.expenses.Add(ctx, models.ExpenseInput{
		Amount:      amount,
		Category:    fs.Arg(1),
		Description: strings.Join(fs.Args()[2:], " "),
		Date:        *date,
	})
	if err != nil {
		return err
	}
	a.printf("added %s\n", e.ID)
	return nil
}

func (a *App) expenseList(ctx context.Context, _ []string) error {
	return a.printExpenses(a.expenses.List(ctx))
}

func (a *App) printExpenses(list []models.Expense) error {
	if len(list) == 0 {
		a.printf("no expenses\n")
		return nil
	}
	w := a.table()
	fmt.Fprintln(w, "ID\tDATE\tCATEGORY\tAMOUNT\tDESCRIPTION")
	for _, e := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n", e.ID, e.Date, e.Category, e.Amount, e.Description)
	}
	return w.Flush()
}

func (a *App) expenseGet(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	e, ok := a.expenses.GetByID(ctx, args[0])
	if !ok {
		return fmt.Errorf("expense %s: %w", args[0], models.ErrNotFound)
	}
	return a.printExpenses([]models.Expense{e})
}

func (a *App) expenseUpdate(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return ErrUsage
	}
	id := args[0]

	fs := newFlags("expense update")
	amount := fs.Float64("amount", 0, "")
	category := fs.String("category", "", "")
	description := fs.String("description", "", "")
	date := fs.String("date", "", "")
	if err := fs.Parse(args[1:]); err != nil || fs.NArg() > 0 {
		return ErrUsage
	}

	var patch models.ExpensePatch
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "amount":
			patch.Amount = amount
		case "category":
			patch.Category = category
		case "description":
			patch.Description = description
		case "date":
			patch.Date = date
		}
	})

	e, err := a.expenses.Update(ctx, id, patch)
	if err != nil {
		return err
	}
	return a.printExpenses([]models.Expense{*e})
}

func (a *App) expenseDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	if err := a.expenses.Delete(ctx, args[0]); err != nil {
		return err
	}
	a.printf("deleted %s\n", args[0])
	return nil
}

func (a *App) expenseDeleteBatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}
	before := len(a.expenses.List(ctx))
	if err := a.expenses.DeleteBatch(ctx, args); err != nil {
		return err
	}
	a.printf("deleted %d\n", before-len(a.expenses.List(ctx)))
	return nil
}

func (a *App) expenseSearch(ctx context.Context, args []string) error {
	list, err := a.expenses.Search(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	return a.printExpenses(list)
}

func (a *App) expenseRefresh(ctx context.Context, _ []string) error {
	a.expenses.Refresh(ctx)
	return a.expenseList(ctx, nil)
}

func (a *App) summary(ctx context.Context, _ []string) error {
	s := a.expenses.Summary(ctx, time.Now())
	currency := a.settings.App(ctx).Currency

	w := a.table()
	fmt.Fprintf(w, "expenses\t%d\n", s.Count)
	fmt.Fprintf(w, "total\t%.2f %s\n", s.Total, currency)
	fmt.Fprintf(w, "average\t%.2f %s\n", s.Average, currency)
	fmt.Fprintf(w, "today\t%.2f %s\n", s.Today, currency)
	fmt.Fprintf(w, "this month\t%.2f %s\n", s.ThisMonth, currency)
	if s.Largest != nil {
		fmt.Fprintf(w, "largest\t%.2f %s (%s)\n", s.Largest.Amount, currency, s.Largest.Category)
	}
	for _, c := range s.ByCategory {
		fmt.Fprintf(w, "  %s\t%.2f (%d)\n", c.Category, c.Total, c.Count)
	}
	return w.Flush()
}

// notifications

func (a *App) notifList(ctx context.Context, _ []string) error {
	list := a.notifications.List(ctx)
	if len(list) == 0 {
		a.printf("no notifications\n")
		return nil
	}
	w := a.table()
	fmt.Fprintln(w, "ID\tTIME\tCATEGORY\t\tTITLE\tMESSAGE")
	for _, n := range list {
		mark := ""
		if !n.Read {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", n.ID, n.Timestamp, n.Category, mark, n.Title, n.Message)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	a.printf("%d unread\n", a.notifications.UnreadCount(ctx))
	return nil
}

func (a *App) notifAdd(ctx context.Context, args []string) error {
	fs := newFlags("notif add")
	category := fs.String("category", string(models.NotificationSystem), "")
	if err := fs.Parse(args); err != nil || fs.NArg() < 1 {
		return ErrUsage
	}
	n, err := a.notifications.Add(ctx, models.NotificationInput{
		Title:    fs.Arg(0),
		Message:  strings.Join(fs.Args()[1:], " "),
		Category: models.NotificationCategory(*category),
	})
	if err != nil {
		return err
	}
	a.printf("added %s\n", n.ID)
	return nil
}

func (a *App) notifRead(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	return a.notifications.MarkRead(ctx, args[0])
}

func (a *App) notifReadAll(ctx context.Context, _ []string) error {
	return a.notifications.MarkAllRead(ctx)
}

func (a *App) notifDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	return a.notifications.Delete(ctx, args[0])
}

func (a *App) notifDeleteRead(ctx context.Context, _ []string) error {
	n, err := a.notifications.DeleteAllRead(ctx)
	if err != nil {
		return err
	}
	a.printf("deleted %d\n", n)
	return nil
}

// profile

func (a *App) profileShow(ctx context.Context, _ []string) error {
	p, err := a.profiles.GetOrCreate(ctx, middleware.GetEmail(ctx))
	if err != nil {
		return err
	}

	w := a.table()
	fmt.Fprintf(w, "name\t%s\n", p.Name)
	fmt.Fprintf(w, "email\t%s\n", p.Email)
	for _, f := range []struct{ label, value string }{
		{"phone", p.Phone},
		{"bio", p.Bio},
		{"location", p.Location},
		{"website", p.Website},
		{"occupation", p.Occupation},
		{"education", p.Education},
	} {
		if f.value != "" {
			fmt.Fprintf(w, "%s\t%s\n", f.label, f.value)
		}
	}
	if len(p.Interests) > 0 {
		fmt.Fprintf(w, "interests\t%s\n", strings.Join(p.Interests, ", "))
	}
	for platform, url := range p.SocialLinks {
		fmt.Fprintf(w, "%s\t%s\n", platform, url)
	}
	fmt.Fprintf(w, "avatar\t%s\n", imageSummary(p.Avatar))
	fmt.Fprintf(w, "cover\t%s\n", imageSummary(p.CoverImage))
	fmt.Fprintf(w, "updated\t%s\n", p.LastUpdated)
	return w.Flush()
}

func imageSummary(payload string) string {
	if payload == "" {
		return "none"
	}
	return fmt.Sprintf("%d bytes", len(payload))
}

// linkFlags collects repeated -link platform=url flags.
type linkFlags map[string]string

func (l linkFlags) String() string { return fmt.Sprint(map[string]string(l)) }

func (l linkFlags) Set(v string) error {
	platform, url, ok := strings.Cut(v, "=")
	if !ok || platform == "" {
		return fmt.Errorf("want platform=url, got %q", v)
	}
	l[platform] = url
	return nil
}

func (a *App) profileSet(ctx context.Context, args []string) error {
	fs := newFlags("profile set")
	var patch models.ProfilePatch
	fields := map[string]**string{
		"name":       &patch.Name,
		"phone":      &patch.Phone,
		"bio":        &patch.Bio,
		"location":   &patch.Location,
		"website":    &patch.Website,
		"occupation": &patch.Occupation,
		"education":  &patch.Education,
	}
	values := make(map[string]*string, len(fields))
	for name := range fields {
		values[name] = fs.String(name, "", "")
	}
	interests := fs.String("interests", "", "comma-separated")
	links := linkFlags{}
	fs.Var(links, "link", "platform=url, empty url removes")

	if err := fs.Parse(args); err != nil || fs.NArg() > 0 || fs.NFlag() == 0 {
		return ErrUsage
	}
	fs.Visit(func(f *flag.Flag) {
		if dst, ok := fields[f.Name]; ok {
			*dst = values[f.Name]
		}
		if f.Name == "interests" {
			patch.Interests = splitList(*interests)
		}
	})
	if len(links) > 0 {
		patch.SocialLinks = links
	}

	if _, err := a.profiles.Update(ctx, middleware.GetEmail(ctx), patch); err != nil {
		return err
	}
	return a.profileShow(ctx, nil)
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (a *App) profileImage(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return ErrUsage
	}
	email := middleware.GetEmail(ctx)
	kind, payload := args[0], args[1]

	switch {
	case kind == "avatar" && payload == "rm":
		return a.profiles.RemoveAvatar(ctx, email)
	case kind == "avatar":
		return a.profiles.SaveAvatar(ctx, email, payload)
	case kind == "cover" && payload == "rm":
		return a.profiles.RemoveCover(ctx, email)
	case kind == "cover":
		return a.profiles.SaveCover(ctx, email, payload)
	}
	return ErrUsage
}

func (a *App) profileClear(ctx context.Context, _ []string) error {
	if err := a.profiles.ClearUserData(ctx, middleware.GetEmail(ctx)); err != nil {
		return err
	}
	a.printf("profile data cleared\n")
	return nil
}

// settings

func (a *App) settingsShow(ctx context.Context, _ []string) error {
	app := a.settings.App(ctx)
	account := a.settings.Account(ctx)

	w := a.table()
	fmt.Fprintf(w, "currency\t%s\n", app.Currency)
	fmt.Fprintf(w, "theme\t%s\n", app.Theme)
	fmt.Fprintf(w, "language\t%s\n", app.Language)
	fmt.Fprintf(w, "date-format\t%s\n", app.DateFormat)
	fmt.Fprintf(w, "notifications\t%t\n", app.NotificationsEnabled)
	fmt.Fprintf(w, "compact\t%t\n", app.CompactView)
	fmt.Fprintf(w, "two-factor\t%t\n", account.TwoFactorEnabled)
	fmt.Fprintf(w, "email-notifications\t%t\n", account.EmailNotifications)
	fmt.Fprintf(w, "push-notifications\t%t\n", account.PushNotifications)
	fmt.Fprintf(w, "marketing-emails\t%t\n", account.MarketingEmails)
	fmt.Fprintf(w, "session-timeout\t%d\n", account.SessionTimeoutMinutes)
	return w.Flush()
}

func (a *App) settingsSet(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return ErrUsage
	}
	name, value := args[0], args[1]

	app := a.settings.App(ctx)
	appField := map[string]*string{
		"currency":    &app.Currency,
		"theme":       &app.Theme,
		"language":    &app.Language,
		"date-format": &app.DateFormat,
	}
	if dst, ok := appField[name]; ok {
		*dst = value
		return a.settings.SaveApp(ctx, app)
	}
	appFlag := map[string]*bool{
		"notifications": &app.NotificationsEnabled,
		"compact":       &app.CompactView,
	}
	if dst, ok := appFlag[name]; ok {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: want true or false, got %q", name, value)
		}
		*dst = b
		return a.settings.SaveApp(ctx, app)
	}

	account := a.settings.Account(ctx)
	accountFlag := map[string]*bool{
		"two-factor":          &account.TwoFactorEnabled,
		"email-notifications": &account.EmailNotifications,
		"push-notifications":  &account.PushNotifications,
		"marketing-emails":    &account.MarketingEmails,
	}
	if dst, ok := accountFlag[name]; ok {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: want true or false, got %q", name, value)
		}
		*dst = b
		return a.settings.SaveAccount(ctx, account)
	}
	if name == "session-timeout" {
		minutes, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("session-timeout: want minutes, got %q", value)
		}
		account.SessionTimeoutMinutes = minutes
		return a.settings.SaveAccount(ctx, account)
	}
	return fmt.Errorf("unknown setting %q", name)
}

func (a *App) settingsReset(ctx context.Context, _ []string) error {
	return a.settings.Reset(ctx)
}

// diagnostics

func (a *App) watch(ctx context.Context, _ []string) error {
	a.unwatch()

	ident := middleware.GetIdentity(ctx)
	show := func(c storage.Change) {
		if c.Deleted {
			a.printf("\n[change] %s deleted\n", c.Key)
			return
		}
		a.printf("\n[change] %s (%d bytes)\n", c.Key, len(c.Value))
	}

	a.watches = append(a.watches, a.expenses.Watch(show))
	if key, err := namespace.Key(namespace.Notifications, ident); err == nil {
		a.watches = append(a.watches, a.session.Store(a.store).Subscribe(key, show))
	}
	a.printf("watching changes for %s\n", ident.Email)
	return nil
}

func (a *App) unwatch() {
	for _, stop := range a.watches {
		stop()
	}
	a.watches = nil
}

func (a *App) keys(ctx context.Context, args []string) error {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	keys, err := a.store.Keys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		a.printf("%s\n", k)
	}
	return nil
}

func (a *App) stats(_ context.Context, _ []string) error {
	families, err := a.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	w := a.table()
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			fmt.Fprintf(w, "%s\t%s\t%g\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
	return w.Flush()
}
