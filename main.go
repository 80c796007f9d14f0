package main

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/huyng1801/diem-danh/config"
	"github.com/huyng1801/diem-danh/database"
	"github.com/huyng1801/diem-danh/handlers"
	"github.com/huyng1801/diem-danh/recognition"
	"github.com/huyng1801/diem-danh/repository"
	"github.com/huyng1801/diem-danh/services"
	"github.com/huyng1801/diem-danh/uploads"
	"github.com/huyng1801/diem-danh/workers"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	storagePaths := []string{cfg.StudentFacesPath, cfg.SnapshotsPath, cfg.ModelsPath, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: Failed to migrate database schema: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("FATAL: Failed to get underlying sql.DB: %v", err)
	}
	defer sqlDB.Close()

	uploadSubDirs := map[uploads.AssetType]string{
		uploads.AssetTypeStudentFace: filepath.Base(cfg.StudentFacesPath),
		uploads.AssetTypeSnapshot:    filepath.Base(cfg.SnapshotsPath),
		uploads.AssetTypeModel:       filepath.Base(cfg.ModelsPath),
	}
	uploadStore, err := uploads.NewLocalStorage(cfg.UploadStoragePath, uploadSubDirs)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize upload store: %v", err)
	}

	classroomRepo := repository.NewClassroomRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	imageRepo := repository.NewStudentImageRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	userRepo := repository.NewUserRepository(db)

	detector := recognition.NewDNNFaceDetector(cfg.FaceDNNNetConfigPath, cfg.FaceDNNNetModelPath)
	defer detector.Close()
	embedder := recognition.NewEmbedder(cfg.FaceEmbedModelPath, cfg.FaceEmbedModelName)
	defer embedder.Close()
	extractor := recognition.NewExtractor(detector, embedder, cfg.MaxWorkingDimension)

	recognitionService := services.NewRecognitionService(
		extractor,
		studentRepo,
		cfg.GalleryPath,
		cfg.LabelThreshold,
		cfg.MinImagesPerStudent,
		cfg.MinTotalEmbeddings,
	)
	if err := recognitionService.LoadGallery(); err != nil {
		// recognition stays unavailable until the next training run; the rest
		// of the attendance surface still works
		log.Printf("WARNING: Failed to load persisted gallery, starting without one: %v", err)
	}

	attendanceService := services.NewAttendanceService(
		attendanceRepo,
		studentRepo,
		classroomRepo,
		cfg.MinRecordConfidence,
		time.Duration(cfg.AbsentDeadlineHours)*time.Hour,
	)

	jobProcessor := workers.NewJobProcessor(recognitionService, attendanceService, cfg.JobQueueSize, cfg.NumJobWorkers)
	defer jobProcessor.Stop()

	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Storing enrollment images in: %s", cfg.StudentFacesPath)
	log.Printf("Storing check-in snapshots in: %s", cfg.SnapshotsPath)
	log.Printf("Gallery blob path: %s", cfg.GalleryPath)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"}, //TODO: configurable
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsHandler.Handler)

	classroomHandler := &handlers.ClassroomHandler{ClassroomRepo: classroomRepo, StudentRepo: studentRepo}
	studentHandler := &handlers.StudentHandler{StudentRepo: studentRepo, ImageRepo: imageRepo, Store: uploadStore, Cfg: cfg}
	recognitionHandler := &handlers.RecognitionHandler{Recognition: recognitionService, Jobs: jobProcessor, Store: uploadStore}
	userHandler := &handlers.UserHandler{UserRepo: userRepo}
	attendanceHandler := &handlers.AttendanceHandler{
		Attendance:     attendanceService,
		Recognition:    recognitionService,
		AttendanceRepo: attendanceRepo,
		Jobs:           jobProcessor,
		Store:          uploadStore,
		ReportDB:       sqlDB,
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/classrooms", func(r chi.Router) {
			r.Post("/", classroomHandler.CreateClassroom)
			r.Get("/", classroomHandler.ListClassrooms)
			r.Route("/{classroom_id}", func(r chi.Router) {
				r.Get("/", classroomHandler.GetClassroom)
				r.Get("/students", classroomHandler.ListClassroomStudents)
				r.Get("/report", attendanceHandler.ClassReport)
			})
		})

		r.Route("/students", func(r chi.Router) {
			r.Post("/", studentHandler.CreateStudent)
			r.Route("/{student_id}", func(r chi.Router) {
				r.Get("/", studentHandler.GetStudent)
				r.Delete("/", studentHandler.DeactivateStudent)
				r.Post("/faces", studentHandler.UploadFaceImage)
				r.Get("/faces", studentHandler.ListFaceImages)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", userHandler.CreateUser)
			r.Get("/{user_id}", userHandler.GetUser)
		})

		r.Route("/recognition", func(r chi.Router) {
			r.Post("/train", recognitionHandler.TrainGallery)
			r.Get("/stats", recognitionHandler.GetStats)
			r.Post("/recognize", recognitionHandler.RecognizeImage)
		})

		r.Route("/attendance", func(r chi.Router) {
			r.Post("/sessions", attendanceHandler.CreateSession)
			r.Post("/sweep", attendanceHandler.TriggerSweep)
			r.Route("/sessions/{session_id}", func(r chi.Router) {
				r.Get("/", attendanceHandler.GetSession)
				r.Get("/records", attendanceHandler.ListSessionRecords)
				r.Post("/records", attendanceHandler.RecordManual)
				r.Post("/check-in", attendanceHandler.FaceCheckIn)
				r.Post("/finalize", attendanceHandler.FinalizeSession)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := ":" + port

	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("FATAL: Server failed: %v", err)
	}
}
