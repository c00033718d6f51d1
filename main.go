package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Yohan-Helitha/DesynFlow-sub000/clients"
	"github.com/Yohan-Helitha/DesynFlow-sub000/handlers"
	"github.com/Yohan-Helitha/DesynFlow-sub000/logging"
	"github.com/Yohan-Helitha/DesynFlow-sub000/middleware"
	"github.com/Yohan-Helitha/DesynFlow-sub000/repositories"
	"github.com/Yohan-Helitha/DesynFlow-sub000/services"
	"github.com/Yohan-Helitha/DesynFlow-sub000/utils"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func newBreaker(name string, timeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger.Infof("Event ID: CIRCUIT_BREAKER_STATE_CHANGE, Description: Circuit Breaker '%s' changed from '%s' to '%s'", name, from.String(), to.String())
		},
	})
}

func main() {
	logging.InitLogger()

	logging.Logger.Info("Event ID: SERVICE_START, Description: Starting Tasks Service...")
	if err := godotenv.Load(".env"); err != nil {
		logging.Logger.Warnf("Event ID: ENV_LOAD_ERROR, Description: Error loading .env file: %v", err)
	}

	mongoURI := os.Getenv("MONGO_URI")
	mongoDBName := os.Getenv("MONGO_DB_NAME")
	mongoCollectionName := os.Getenv("MONGO_COLLECTION")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tasksClient, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		logging.Logger.Fatalf("Event ID: DB_CONNECTION_FAILED, Description: Database connection for MongoDB failed: %v", err)
	}
	defer tasksClient.Disconnect(ctx)

	if err := tasksClient.Ping(ctx, nil); err != nil {
		logging.Logger.Fatalf("Event ID: DB_PING_FAILED, Description: MongoDB connection ping error: %v", err)
	}
	logging.Logger.Infof("Event ID: DB_CONNECTED, Description: Successfully connected to MongoDB at %s.", mongoURI)

	taskRepo := repositories.NewMongoTaskRepo(tasksClient, mongoDBName, mongoCollectionName)
	logging.Logger.Infof("Event ID: DB_COLLECTION_SET, Description: Using MongoDB collection: %s/%s", mongoDBName, mongoCollectionName)

	httpClient := utils.NewHTTPClient()

	teamsBreaker := newBreaker("TeamsServiceCB", 2*time.Second)
	projectsBreaker := newBreaker("ProjectsServiceCB", 2*time.Second)
	notificationsBreaker := newBreaker("NotificationsServiceCB", 5*time.Second)

	teamClient := clients.NewTeamClient(os.Getenv("TEAMS_SERVICE_URL"), httpClient, teamsBreaker)
	projectClient := clients.NewProjectClient(os.Getenv("PROJECTS_SERVICE_URL"), httpClient, projectsBreaker)
	notificationClient := clients.NewNotificationClient(os.Getenv("NOTIFICATIONS_SERVICE_URL"), httpClient, notificationsBreaker)

	assignmentService := services.NewAssignmentService(projectClient, teamClient)
	progressService := services.NewProgressService(taskRepo, projectClient)
	taskService := services.NewTaskService(taskRepo, assignmentService, projectClient, teamClient, progressService, notificationClient)
	taskHandler := handlers.NewTaskHandler(taskService, assignmentService, progressService)

	r := mux.NewRouter()
	r.Use(middleware.JWTAuthMiddleware)

	r.HandleFunc("/api/tasks", taskHandler.CreateTask).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/{taskID}", taskHandler.GetTask).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{taskID}", taskHandler.UpdateTask).Methods(http.MethodPatch)
	r.HandleFunc("/api/tasks/{taskID}", taskHandler.DeleteTask).Methods(http.MethodDelete)
	r.HandleFunc("/api/tasks/{taskID}/status", taskHandler.TransitionTask).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/project/{projectId}", taskHandler.GetTasksByProject).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/project/{projectId}/progress", taskHandler.GetProjectProgress).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/project/{projectId}/has-unfinished", taskHandler.HasUnfinishedTasks).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/project/{projectId}/assignment-check/{userID}", taskHandler.CheckAssignment).Methods(http.MethodGet)

	corsRouter := enableCORS(r)

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		logging.Logger.Fatalf("Event ID: CONFIG_ERROR, Description: SERVER_PORT is not set in the environment variables.")
	}

	serverAddress := fmt.Sprintf(":%s", serverPort)
	logging.Logger.Infof("Event ID: SERVER_START_INFO, Description: Server running on http://localhost%s", serverAddress)

	if err := http.ListenAndServe(serverAddress, corsRouter); err != nil {
		logging.Logger.Fatalf("Event ID: SERVER_FATAL_ERROR, Description: Server failed to start: %v", err)
	}
}
