package gui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"github.com/fmuoria/CV-Analyzer/internal/agent"
	"github.com/fmuoria/CV-Analyzer/internal/config"
	"github.com/fmuoria/CV-Analyzer/internal/export"
	"github.com/fmuoria/CV-Analyzer/internal/ingestion"
	"github.com/fmuoria/CV-Analyzer/internal/logging"
	"github.com/fmuoria/CV-Analyzer/internal/models"
)

// App represents the main GUI application
type App struct {
	fyneApp    fyne.App
	mainWindow fyne.Window
	config     *config.Config
	session    *agent.Session
	files      *ingestion.FileHandler
	cancelFunc context.CancelFunc

	// Job description section
	jdPaths     []string
	jdFilesList *widget.Label
	jdText      *widget.Entry
	analyzeBtn  *widget.Button

	// Requirements section
	reqRows     *fyne.Container
	weightBadge *widget.Label

	// CV section
	cvPaths      []string
	cvFilesLabel *widget.Label
	subjectEntry *widget.Entry
	scoreBtn     *widget.Button
	sortBtn      *widget.Button
	cancelBtn    *widget.Button
	exportBtn    *widget.Button
	resultsTable *widget.Table

	progressBar   *widget.ProgressBar
	progressLabel *widget.Label

	candidates []models.Candidate
}

// NewApp creates a new GUI application around an analysis session
func NewApp(cfg *config.Config, session *agent.Session, files *ingestion.FileHandler) *App {
	a := app.New()
	w := a.NewWindow("CV Analyzer")
	w.Resize(fyne.NewSize(1000, 760))

	guiApp := &App{
		fyneApp:    a,
		mainWindow: w,
		config:     cfg,
		session:    session,
		files:      files,
	}

	session.SetProgressCallback(func(current, total int, message string) {
		fyne.Do(func() {
			guiApp.progressBar.SetValue(float64(current) / float64(total))
			guiApp.progressLabel.SetText(message)
		})
	})

	guiApp.setupUI()
	return guiApp
}

// Run starts the GUI application
func (a *App) Run() {
	a.mainWindow.ShowAndRun()
}

// setupUI initializes all UI components
func (a *App) setupUI() {
	tabs := container.NewAppTabs(
		container.NewTabItem("Analyze", a.createAnalyzeTab()),
		container.NewTabItem("Settings", a.createSettingsTab()),
	)
	a.mainWindow.SetContent(tabs)
	a.refreshRequirements()
	a.refreshCVFiles()
}

func (a *App) createAnalyzeTab() fyne.CanvasObject {
	a.progressBar = widget.NewProgressBar()
	a.progressLabel = widget.NewLabel("Ready")

	newBtn := widget.NewButton("New Analysis", a.handleNewAnalysis)

	return container.NewVScroll(container.NewVBox(
		container.NewHBox(newBtn),
		a.createJDSection(),
		widget.NewSeparator(),
		a.createRequirementsSection(),
		widget.NewSeparator(),
		a.createCVSection(),
		widget.NewSeparator(),
		a.progressLabel,
		a.progressBar,
	))
}

func (a *App) createJDSection() fyne.CanvasObject {
	a.jdFilesList = widget.NewLabel("No files selected")
	a.jdText = widget.NewMultiLineEntry()
	a.jdText.SetPlaceHolder("Paste the job description (optional when PDFs are attached)...")
	a.jdText.SetMinRowsVisible(4)

	addBtn := widget.NewButton("Add PDF...", func() {
		a.choosePDF(func(path string) {
			a.jdPaths = append(a.jdPaths, path)
			a.jdFilesList.SetText(fileList(a.jdPaths))
		})
	})
	clearBtn := widget.NewButton("Clear", func() {
		a.jdPaths = nil
		a.jdFilesList.SetText(fileList(nil))
	})
	a.analyzeBtn = widget.NewButton("Analyze", a.handleAnalyze)

	return container.NewVBox(
		widget.NewLabelWithStyle("Job Description", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewHBox(addBtn, clearBtn),
		a.jdFilesList,
		a.jdText,
		a.analyzeBtn,
	)
}

func (a *App) createRequirementsSection() fyne.CanvasObject {
	a.reqRows = container.NewVBox()
	a.weightBadge = widget.NewLabel("")
	addBtn := widget.NewButton("Add requirement", func() {
		a.session.AddRequirement()
		a.refreshRequirements()
	})

	return container.NewVBox(
		container.NewHBox(
			widget.NewLabelWithStyle("Requirements", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
			a.weightBadge,
		),
		a.reqRows,
		addBtn,
	)
}

// refreshRequirements rebuilds the editable rows from the session
func (a *App) refreshRequirements() {
	a.reqRows.RemoveAll()
	for i, req := range a.session.Requirements() {
		skill := widget.NewEntry()
		skill.SetPlaceHolder("Skill")
		skill.SetText(req.Skill)
		skill.OnChanged = func(text string) {
			if _, err := a.session.UpdateRequirement(i, models.RequirementPatch{Skill: &text}); err != nil {
				logging.Warnf("Failed to update requirement %d: %v", i, err)
			}
		}

		weight := widget.NewEntry()
		weight.SetText(formatWeight(req.Weight))
		weight.OnChanged = func(text string) {
			w, ok := parseWeight(text)
			if !ok {
				return
			}
			if _, err := a.session.UpdateRequirement(i, models.RequirementPatch{Weight: &w}); err != nil {
				logging.Warnf("Failed to update requirement %d: %v", i, err)
			}
			a.updateWeightBadge()
		}

		remove := widget.NewButton("Remove", func() {
			if err := a.session.RemoveRequirement(i); err != nil {
				dialog.ShowError(err, a.mainWindow)
				return
			}
			a.refreshRequirements()
		})

		a.reqRows.Add(container.NewBorder(nil, nil, nil,
			container.NewHBox(container.NewGridWrap(fyne.NewSize(90, weight.MinSize().Height), weight), remove),
			skill))
	}
	a.reqRows.Refresh()
	a.updateWeightBadge()
	a.updateButtons()
}

func (a *App) updateWeightBadge() {
	a.weightBadge.SetText(weightBadgeText(a.session.WeightSum()))
}

func (a *App) createCVSection() fyne.CanvasObject {
	a.cvFilesLabel = widget.NewLabel("")
	addBtn := widget.NewButton("Add CV...", func() {
		a.choosePDF(func(path string) {
			if len(a.cvPaths) >= a.session.MaxCVFiles() {
				dialog.ShowInformation("Limit reached",
					fmt.Sprintf("At most %d CVs can be scored at once", a.session.MaxCVFiles()), a.mainWindow)
				return
			}
			a.cvPaths = append(a.cvPaths, path)
			a.refreshCVFiles()
		})
	})
	clearBtn := widget.NewButton("Clear", func() {
		a.cvPaths = nil
		a.refreshCVFiles()
	})

	a.subjectEntry = widget.NewEntry()
	a.subjectEntry.SetPlaceHolder("Gmail subject, e.g. Job Application")
	gmailBtn := widget.NewButton("Import from Gmail", a.handleGmailImport)

	a.scoreBtn = widget.NewButton("Score", a.handleScore)
	a.cancelBtn = widget.NewButton("Cancel", a.handleCancel)
	a.cancelBtn.Disable()
	a.sortBtn = widget.NewButton(sortLabel(a.session.SortDescending()), func() {
		desc := a.session.ToggleSort()
		a.sortBtn.SetText(sortLabel(desc))
		a.showCandidates(a.session.SortedCandidates())
	})
	a.exportBtn = widget.NewButton("Export to Excel", a.handleExport)
	a.exportBtn.Disable()

	headers := []string{"Rank", "Name", "Email", "Score", "File"}
	a.resultsTable = widget.NewTable(
		func() (int, int) {
			return len(a.candidates) + 1, len(headers)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("Template")
		},
		func(id widget.TableCellID, cell fyne.CanvasObject) {
			label := cell.(*widget.Label)
			if id.Row == 0 {
				label.TextStyle = fyne.TextStyle{Bold: true}
				label.SetText(headers[id.Col])
				return
			}
			label.TextStyle = fyne.TextStyle{}
			if id.Row-1 < len(a.candidates) {
				label.SetText(candidateRow(id.Row, a.candidates[id.Row-1])[id.Col])
			}
		},
	)
	for col, width := range []float32{60, 200, 220, 90, 200} {
		a.resultsTable.SetColumnWidth(col, width)
	}

	return container.NewVBox(
		widget.NewLabelWithStyle("Upload CVs & Score", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewHBox(addBtn, clearBtn),
		container.NewBorder(nil, nil, nil, gmailBtn, a.subjectEntry),
		a.cvFilesLabel,
		container.NewHBox(a.scoreBtn, a.cancelBtn, a.sortBtn, a.exportBtn),
		container.NewGridWrap(fyne.NewSize(800, 300), a.resultsTable),
	)
}

func (a *App) refreshCVFiles() {
	a.cvFilesLabel.SetText(fmt.Sprintf("%d/%d CVs selected\n%s", len(a.cvPaths), a.session.MaxCVFiles(), fileList(a.cvPaths)))
	a.updateButtons()
}

// updateButtons enables scoring only with requirements and CVs present
func (a *App) updateButtons() {
	if a.scoreBtn == nil {
		return
	}
	if len(a.session.Requirements()) > 0 && len(a.cvPaths) > 0 {
		a.scoreBtn.Enable()
	} else {
		a.scoreBtn.Disable()
	}
}

func (a *App) choosePDF(onChosen func(path string)) {
	open := dialog.NewFileOpen(func(uc fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, a.mainWindow)
			return
		}
		if uc == nil {
			return
		}
		defer uc.Close()
		onChosen(uc.URI().Path())
	}, a.mainWindow)
	open.SetFilter(storage.NewExtensionFileFilter([]string{".pdf", ".PDF"}))
	open.Show()
}

// handleAnalyze sends the job description to the backend
func (a *App) handleAnalyze() {
	if len(a.jdPaths) == 0 && a.jdText.Text == "" {
		dialog.ShowError(errors.New("add a job description PDF or paste its text"), a.mainWindow)
		return
	}

	ctx := a.startWork()
	paths := append([]string(nil), a.jdPaths...)
	text := a.jdText.Text

	go func() {
		var result models.AnalyzeResult
		files, err := a.storeBatch(ingestion.KindJD, paths)
		if err == nil {
			result, err = a.session.Analyze(ctx, text, files)
		}

		fyne.Do(func() {
			a.finishWork(err)
			if err != nil {
				return
			}
			a.refreshRequirements()
			a.progressLabel.SetText(fmt.Sprintf("Found %d requirement(s)", len(result.Requirements)))
		})
	}()
}

// handleScore scores the selected CVs against the current requirements
func (a *App) handleScore() {
	ctx := a.startWork()
	paths := append([]string(nil), a.cvPaths...)

	go func() {
		var cands []models.Candidate
		files, err := a.storeBatch(ingestion.KindCV, paths)
		if err == nil {
			a.session.SetCVFiles(files)
			cands, err = a.session.Score(ctx)
		}

		fyne.Do(func() {
			a.finishWork(err)
			if err != nil {
				return
			}
			a.showCandidates(cands)
			a.exportBtn.Enable()
			a.fyneApp.SendNotification(&fyne.Notification{
				Title:   "Scoring Complete",
				Content: fmt.Sprintf("Ranked %d candidate(s)", len(cands)),
			})
		})
	}()
}

func (a *App) handleGmailImport() {
	subject := a.subjectEntry.Text
	if subject == "" {
		dialog.ShowError(errors.New("please enter an email subject filter"), a.mainWindow)
		return
	}
	credsPath := a.config.GmailCredentialsPath
	if credsPath == "" {
		dialog.ShowError(errors.New("configure Gmail credentials in Settings first"), a.mainWindow)
		return
	}

	ctx := a.startWork()
	limit := a.session.MaxCVFiles() - len(a.cvPaths)

	go func() {
		var batch *ingestion.Batch
		handler, err := ingestion.NewGmailHandler(ctx, credsPath, a.files, a.askAuthCode)
		if err == nil {
			batch, err = handler.FetchCVs(ctx, subject, limit)
		}

		fyne.Do(func() {
			a.finishWork(err)
			if err != nil {
				return
			}
			for _, f := range batch.Files {
				a.cvPaths = append(a.cvPaths, f.Path)
			}
			a.refreshCVFiles()
			a.progressLabel.SetText(fmt.Sprintf("Imported %d CV(s) from Gmail", len(batch.Files)))
		})
	}()
}

// askAuthCode shows the consent URL and blocks until the user pastes the code
func (a *App) askAuthCode(authURL string) (string, error) {
	codeCh := make(chan string, 1)
	fyne.Do(func() {
		urlEntry := widget.NewEntry()
		urlEntry.SetText(authURL)
		codeEntry := widget.NewEntry()
		codeEntry.SetPlaceHolder("Authorization code")

		dialog.ShowForm("Authorize Gmail", "Submit", "Cancel", []*widget.FormItem{
			widget.NewFormItem("Open this URL", urlEntry),
			widget.NewFormItem("Code", codeEntry),
		}, func(ok bool) {
			if !ok {
				codeCh <- ""
				return
			}
			codeCh <- codeEntry.Text
		}, a.mainWindow)
	})

	code := <-codeCh
	if code == "" {
		return "", errors.New("authorization cancelled")
	}
	return code, nil
}

// storeBatch copies the chosen files into an upload batch
func (a *App) storeBatch(kind string, paths []string) ([]*models.FileRef, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	uploads := make([]ingestion.Upload, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(p), err)
		}
		defer f.Close()
		uploads = append(uploads, ingestion.Upload{Name: filepath.Base(p), Content: f})
	}

	batch, err := a.files.SaveBatch(kind, uploads)
	if err != nil {
		return nil, err
	}
	return batch.Files, nil
}

func (a *App) startWork() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.RequestTimeout())
	a.cancelFunc = cancel
	a.analyzeBtn.Disable()
	a.scoreBtn.Disable()
	a.cancelBtn.Enable()
	a.progressBar.SetValue(0)
	return ctx
}

func (a *App) finishWork(err error) {
	if a.cancelFunc != nil {
		a.cancelFunc()
		a.cancelFunc = nil
	}
	a.analyzeBtn.Enable()
	a.cancelBtn.Disable()
	a.updateButtons()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		a.progressLabel.SetText("Canceled")
	default:
		logging.Errorf("%v", err)
		a.progressLabel.SetText("Error: " + err.Error())
		dialog.ShowError(err, a.mainWindow)
	}
}

// handleNewAnalysis clears the session, the selections and every stored upload
func (a *App) handleNewAnalysis() {
	dialog.ShowConfirm("New Analysis", "Discard the current requirements, CVs and results?", func(ok bool) {
		if !ok {
			return
		}
		a.handleCancel()
		a.session.Reset()
		if err := a.files.ClearUploads(); err != nil {
			logging.Errorf("%v", err)
			dialog.ShowError(err, a.mainWindow)
		}

		a.jdPaths, a.cvPaths = nil, nil
		a.jdFilesList.SetText(fileList(nil))
		a.jdText.SetText("")
		a.sortBtn.SetText(sortLabel(a.session.SortDescending()))
		a.exportBtn.Disable()
		a.showCandidates(nil)
		a.refreshRequirements()
		a.refreshCVFiles()
		a.progressBar.SetValue(0)
		a.progressLabel.SetText("Ready")
	}, a.mainWindow)
}

// handleCancel handles cancellation of a running request
func (a *App) handleCancel() {
	if a.cancelFunc != nil {
		a.cancelFunc()
		a.progressLabel.SetText("Canceling...")
	}
}

func (a *App) showCandidates(cands []models.Candidate) {
	a.candidates = cands
	a.resultsTable.Refresh()
}

// handleExport writes the current results to an Excel file
func (a *App) handleExport() {
	if len(a.candidates) == 0 {
		dialog.ShowError(errors.New("no results to export"), a.mainWindow)
		return
	}

	save := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, a.mainWindow)
			return
		}
		if uc == nil {
			return
		}
		outputPath := uc.URI().Path()
		uc.Close()

		written, err := export.ExportToExcel(a.session.Requirements(), a.session.Candidates(true), a.session.JDID(), outputPath)
		if err != nil {
			dialog.ShowError(fmt.Errorf("failed to export: %w", err), a.mainWindow)
			return
		}
		dialog.ShowInformation("Success", "Results exported successfully to "+filepath.Base(written), a.mainWindow)
	}, a.mainWindow)
	save.SetFileName(fmt.Sprintf("CV_Analysis_%s.xlsx", time.Now().Format("2006-01-02_150405")))
	save.Show()
}

// createSettingsTab creates the settings tab
func (a *App) createSettingsTab() fyne.CanvasObject {
	apiURLEntry := widget.NewEntry()
	apiURLEntry.SetPlaceHolder("https://example.com (empty uses Gemini)")
	apiURLEntry.SetText(a.config.APIURL)

	projectEntry := widget.NewEntry()
	projectEntry.SetText(a.config.GoogleCloudProject)

	locationEntry := widget.NewEntry()
	locationEntry.SetText(a.config.GoogleCloudLocation)

	modelEntry := widget.NewEntry()
	modelEntry.SetText(a.config.GeminiModel)

	googleCredsEntry := widget.NewEntry()
	googleCredsEntry.SetText(a.config.GoogleCredentialsPath)

	gmailCredsEntry := widget.NewEntry()
	gmailCredsEntry.SetText(a.config.GmailCredentialsPath)

	logLevelSelect := widget.NewSelect([]string{"debug", "info", "warn", "error"}, nil)
	logLevelSelect.SetSelected(a.config.LogLevel)

	browse := func(target *widget.Entry) *widget.Button {
		return widget.NewButton("Browse...", func() {
			dialog.ShowFileOpen(func(uc fyne.URIReadCloser, err error) {
				if err == nil && uc != nil {
					target.SetText(uc.URI().Path())
					uc.Close()
				}
			}, a.mainWindow)
		})
	}

	form := widget.NewForm(
		widget.NewFormItem("Analysis Service URL", apiURLEntry),
		widget.NewFormItem("Google Cloud Project", projectEntry),
		widget.NewFormItem("Google Cloud Location", locationEntry),
		widget.NewFormItem("Gemini Model", modelEntry),
		widget.NewFormItem("Google Credentials", container.NewBorder(nil, nil, nil, browse(googleCredsEntry), googleCredsEntry)),
		widget.NewFormItem("Gmail Credentials", container.NewBorder(nil, nil, nil, browse(gmailCredsEntry), gmailCredsEntry)),
		widget.NewFormItem("Log Level", logLevelSelect),
	)

	apply := func() {
		a.config.APIURL = apiURLEntry.Text
		a.config.GoogleCloudProject = projectEntry.Text
		a.config.GoogleCloudLocation = locationEntry.Text
		a.config.GeminiModel = modelEntry.Text
		a.config.GoogleCredentialsPath = googleCredsEntry.Text
		a.config.GmailCredentialsPath = gmailCredsEntry.Text
		a.config.LogLevel = logLevelSelect.Selected
	}

	saveBtn := widget.NewButton("Save Settings", func() {
		apply()
		if err := a.config.Save(); err != nil {
			dialog.ShowError(err, a.mainWindow)
			return
		}
		a.config.ApplyToEnv()
		if err := logging.SetLevel(a.config.LogLevel); err != nil {
			logging.Warnf("Keeping current log level: %v", err)
		}
		dialog.ShowInformation("Success", "Settings saved. Backend changes apply after a restart.", a.mainWindow)
	})

	testBtn := widget.NewButton("Validate", func() {
		apply()
		if err := a.config.Validate(); err != nil {
			dialog.ShowError(fmt.Errorf("validation failed: %w", err), a.mainWindow)
			return
		}
		dialog.ShowInformation("Success", "Configuration is valid", a.mainWindow)
	})

	return container.NewVBox(
		form,
		widget.NewLabel("Active backend: "+a.session.BackendName()),
		container.NewHBox(saveBtn, testBtn),
	)
}
